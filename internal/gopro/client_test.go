package gopro //nolint:testpackage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bavix/camfleet/internal/transfer"
)

func TestSerialDigits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		identifier string
		want       string
		wantErr    bool
	}{
		{name: "plain serial", identifier: "GoPro 1043", want: "043"},
		{name: "digits interleaved", identifier: "cam-9-x-8-y-7", want: "987"},
		{name: "long serial", identifier: "C3501324500711", want: "711"},
		{name: "too few digits", identifier: "GoPro 12", wantErr: true},
		{name: "no digits", identifier: "camera", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, err := serialDigits(tt.identifier)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, string(d[:]))
		})
	}
}

func TestAddressDerivation(t *testing.T) {
	t.Parallel()

	c, err := New("GoPro 1043")
	require.NoError(t, err)
	assert.Equal(t, "http://172.20.143.51:8080", c.base)
}

// testClient returns a Client pointed at a local test server instead of the
// derived wired address.
func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &Client{base: srv.URL, http: srv.Client()}
}

func TestCommandPaths(t *testing.T) {
	t.Parallel()

	var paths []string

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.RequestURI())
		w.WriteHeader(http.StatusOK)
	}))

	ctx := context.Background()

	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.LoadVideoPreset(ctx))
	require.NoError(t, c.SetShutter(ctx, true))
	require.NoError(t, c.SetShutter(ctx, false))
	require.NoError(t, c.SetTurbo(ctx, true))
	require.NoError(t, c.SetTurbo(ctx, false))
	require.NoError(t, c.SetClock(ctx, time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)))

	assert.Equal(t, []string{
		"/gopro/camera/state",
		"/gopro/camera/presets/set_group?id=1000",
		"/gopro/camera/shutter/start",
		"/gopro/camera/shutter/stop",
		"/gopro/media/turbo_transfer?p=1",
		"/gopro/media/turbo_transfer?p=0",
		"/gopro/camera/set_date_time?date=2026_03_14&time=09_26_53",
	}, paths)
}

func TestCommandErrorStatus(t *testing.T) {
	t.Parallel()

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "busy", http.StatusInternalServerError)
	}))

	require.Error(t, c.Open(context.Background()))
}

func TestListMedia(t *testing.T) {
	t.Parallel()

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gopro/media/list", r.URL.Path)
		_, _ = w.Write([]byte(`{"media":[` +
			`{"d":"100GOPRO","fs":[{"n":"GX010001.MP4"},{"n":"GX010002.MP4"}]},` +
			`{"d":"101GOPRO","fs":[{"n":"GX020001.MP4"}]}]}`))
	}))

	files, err := c.ListMedia(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"100GOPRO/GX010001.MP4",
		"100GOPRO/GX010002.MP4",
		"101GOPRO/GX020001.MP4",
	}, files)
}

func TestDownloadMedia(t *testing.T) {
	t.Parallel()

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/videos/DCIM/100GOPRO/GX010001.MP4", r.URL.Path)
		_, _ = w.Write([]byte("payload"))
	}))

	dest := filepath.Join(t.TempDir(), "out.mp4")
	require.NoError(t, c.DownloadMedia(context.Background(), "100GOPRO/GX010001.MP4", dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestDownloadLocalWriteFailureIsPermanent(t *testing.T) {
	t.Parallel()

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))

	dest := filepath.Join(t.TempDir(), "missing", "out.mp4")

	err := c.DownloadMedia(context.Background(), "100GOPRO/GX010001.MP4", dest)
	require.Error(t, err)
	assert.True(t, transfer.IsPermanent(err))
}

func TestDownloadMetadataPath(t *testing.T) {
	t.Parallel()

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gopro/media/gpmf", r.URL.Path)
		assert.Equal(t, "100GOPRO/GX010001.MP4", r.URL.Query().Get("path"))
		_, _ = w.Write([]byte("gpmf"))
	}))

	dest := filepath.Join(t.TempDir(), "out.gpmf")
	require.NoError(t, c.DownloadMetadata(context.Background(), "100GOPRO/GX010001.MP4", dest))
}
