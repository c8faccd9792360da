package transfer_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bavix/camfleet/internal/transfer"
)

type fakeSource struct {
	id string

	mu        sync.Mutex
	calls     []string
	videoErr  map[string]int // filename -> failures before success
	metaErr   map[string]int
	turboErr  bool
	lastDests map[string]string
}

func newFakeSource(id string) *fakeSource {
	return &fakeSource{
		id:        id,
		videoErr:  map[string]int{},
		metaErr:   map[string]int{},
		lastDests: map[string]string{},
	}
}

func (s *fakeSource) Identifier() string { return s.id }

func (s *fakeSource) SetTurbo(_ context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if enabled {
		s.calls = append(s.calls, "turbo_on")
	} else {
		s.calls = append(s.calls, "turbo_off")
	}

	if s.turboErr {
		return errFlaky
	}

	return nil
}

func (s *fakeSource) DownloadMedia(_ context.Context, filename, destPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, "video:"+filename)
	s.lastDests[filename] = destPath

	if s.videoErr[filename] > 0 {
		s.videoErr[filename]--

		return errFlaky
	}

	return nil
}

func (s *fakeSource) DownloadMetadata(_ context.Context, filename, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, "meta:"+filename)

	if s.metaErr[filename] > 0 {
		s.metaErr[filename]--

		return errFlaky
	}

	return nil
}

func (s *fakeSource) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.calls...)
}

func TestCollectHappyPath(t *testing.T) {
	t.Parallel()

	src := newFakeSource("d1")
	d := transfer.NewDownloader(t.TempDir(), 3, 2, true)

	results := d.Collect(context.Background(), []transfer.Source{src},
		map[string][]string{"d1": {"100GOPRO/GX010003.MP4"}})

	require.Len(t, results, 1)
	assert.True(t, results[0].Downloaded)
	assert.True(t, results[0].MetadataDownloaded)
	assert.Equal(t, "d1", results[0].Identifier)

	// Turbo brackets the camera's transfers.
	log := src.callLog()
	assert.Equal(t, "turbo_on", log[0])
	assert.Equal(t, "turbo_off", log[len(log)-1])

	// Flattened destination path.
	assert.Equal(t, "d1_GX010003.MP4", filepath.Base(src.lastDests["100GOPRO/GX010003.MP4"]))
}

func TestCollectVideoFailureSkipsMetadata(t *testing.T) {
	t.Parallel()

	src := newFakeSource("d1")
	src.videoErr["bad.mp4"] = 99 // never succeeds

	d := transfer.NewDownloader(t.TempDir(), 3, 1, false)

	results := d.Collect(context.Background(), []transfer.Source{src},
		map[string][]string{"d1": {"bad.mp4", "good.mp4"}})

	require.Len(t, results, 2)

	byFile := map[string]transfer.Result{}
	for _, r := range results {
		byFile[r.Filename] = r
	}

	assert.False(t, byFile["bad.mp4"].Downloaded)
	assert.False(t, byFile["bad.mp4"].MetadataDownloaded)
	assert.True(t, byFile["good.mp4"].Downloaded)
	assert.True(t, byFile["good.mp4"].MetadataDownloaded)

	// Metadata for the failed video was never requested; the second
	// artifact was still processed.
	assert.NotContains(t, src.callLog(), "meta:bad.mp4")
	assert.Contains(t, src.callLog(), "video:good.mp4")
}

func TestCollectRetriesTransientVideoFailure(t *testing.T) {
	t.Parallel()

	src := newFakeSource("d1")
	src.videoErr["a.mp4"] = 2 // succeeds on third attempt

	d := transfer.NewDownloader(t.TempDir(), 3, 1, false)

	results := d.Collect(context.Background(), []transfer.Source{src},
		map[string][]string{"d1": {"a.mp4"}})

	require.Len(t, results, 1)
	assert.True(t, results[0].Downloaded)

	videoCalls := 0

	for _, c := range src.callLog() {
		if c == "video:a.mp4" {
			videoCalls++
		}
	}

	assert.Equal(t, 3, videoCalls)
}

func TestCollectMetadataFailureIsIsolated(t *testing.T) {
	t.Parallel()

	src := newFakeSource("d1")
	src.metaErr["a.mp4"] = 99

	d := transfer.NewDownloader(t.TempDir(), 2, 1, false)

	results := d.Collect(context.Background(), []transfer.Source{src},
		map[string][]string{"d1": {"a.mp4", "b.mp4"}})

	require.Len(t, results, 2)

	byFile := map[string]transfer.Result{}
	for _, r := range results {
		byFile[r.Filename] = r
	}

	assert.True(t, byFile["a.mp4"].Downloaded)
	assert.False(t, byFile["a.mp4"].MetadataDownloaded)
	assert.True(t, byFile["b.mp4"].Downloaded)
	assert.True(t, byFile["b.mp4"].MetadataDownloaded)
}

func TestCollectTurboFailureDoesNotBlockDownloads(t *testing.T) {
	t.Parallel()

	src := newFakeSource("d1")
	src.turboErr = true

	d := transfer.NewDownloader(t.TempDir(), 3, 1, true)

	results := d.Collect(context.Background(), []transfer.Source{src},
		map[string][]string{"d1": {"a.mp4"}})

	require.Len(t, results, 1)
	assert.True(t, results[0].Downloaded)
}

func TestCollectSkipsCamerasWithNothingNew(t *testing.T) {
	t.Parallel()

	src := newFakeSource("d1")
	idle := newFakeSource("d2")

	d := transfer.NewDownloader(t.TempDir(), 3, 2, true)

	results := d.Collect(context.Background(), []transfer.Source{src, idle},
		map[string][]string{"d1": {"a.mp4"}, "d2": {}})

	require.Len(t, results, 1)
	assert.Empty(t, idle.callLog(), "idle camera must not be touched, not even turbo")
}

func TestCollectMultipleCameras(t *testing.T) {
	t.Parallel()

	a := newFakeSource("d1")
	b := newFakeSource("d2")

	d := transfer.NewDownloader(t.TempDir(), 3, 2, false)

	results := d.Collect(context.Background(), []transfer.Source{a, b},
		map[string][]string{"d1": {"a.mp4"}, "d2": {"b.mp4", "c.mp4"}})

	assert.Len(t, results, 3)
}
