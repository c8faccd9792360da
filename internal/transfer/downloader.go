package transfer

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bavix/camfleet/internal/metrics"
)

// Source is the slice of a camera controller the downloader needs.
type Source interface {
	Identifier() string
	SetTurbo(ctx context.Context, enabled bool) error
	DownloadMedia(ctx context.Context, filename, destPath string) error
	DownloadMetadata(ctx context.Context, filename, destPath string) error
}

// Result is the per-artifact outcome of a collection round. It exists for
// reporting only; the manifest on disk is the durable record.
type Result struct {
	Identifier         string `json:"identifier"`
	Filename           string `json:"filename"`
	Downloaded         bool   `json:"downloaded"`
	MetadataDownloaded bool   `json:"metadata_downloaded"`
}

// Downloader fetches newly captured artifacts from cameras. Cameras fan out
// concurrently up to the configured bound; artifacts on one camera transfer
// sequentially, since its control channel is serialized anyway.
type Downloader struct {
	storageDir  string
	maxAttempts int
	turbo       bool
	concurrency int
}

// NewDownloader builds a Downloader writing into storageDir.
func NewDownloader(storageDir string, maxAttempts, concurrency int, turbo bool) *Downloader {
	return &Downloader{
		storageDir:  storageDir,
		maxAttempts: maxAttempts,
		turbo:       turbo,
		concurrency: concurrency,
	}
}

// Collect downloads every file in manifest from its camera. One artifact's
// exhausted retries exclude only that artifact; one camera's failures never
// touch another camera's transfers.
func (d *Downloader) Collect(ctx context.Context, sources []Source, manifest map[string][]string) []Result {
	var (
		mu      sync.Mutex
		results []Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, src := range sources {
		files := manifest[src.Identifier()]
		if len(files) == 0 {
			continue
		}

		g.Go(func() error {
			res := d.collectFrom(gctx, src, files)

			mu.Lock()
			results = append(results, res...)
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait()

	return results
}

func (d *Downloader) collectFrom(ctx context.Context, src Source, files []string) []Result {
	logger := zerolog.Ctx(ctx).With().Str("camera", src.Identifier()).Logger()
	lctx := logger.WithContext(ctx)

	if d.turbo {
		// Turbo speeds up transfers and flips the camera screen to its
		// "transferring data" display.
		if err := src.SetTurbo(lctx, true); err != nil {
			logger.Warn().Err(err).Msg("could not enable turbo mode for transfer")
		}

		defer func() {
			if err := src.SetTurbo(lctx, false); err != nil {
				logger.Warn().Err(err).Msg("could not disable turbo mode after transfer")
			}
		}()
	}

	results := make([]Result, 0, len(files))

	for _, file := range files {
		results = append(results, d.fetchArtifact(lctx, src, file))
	}

	return results
}

func (d *Downloader) fetchArtifact(ctx context.Context, src Source, file string) Result {
	logger := zerolog.Ctx(ctx)

	res := Result{Identifier: src.Identifier(), Filename: file}

	videoDest := d.destPath(src.Identifier(), file)

	res.Downloaded = Attempt(ctx, func(ctx context.Context) error {
		return src.DownloadMedia(ctx, file, videoDest)
	}, d.maxAttempts)

	if !res.Downloaded {
		// No point fetching telemetry for a video we never got. The
		// manifest still names the file for manual recovery.
		logger.Error().Str("file", file).Msg("giving up on artifact download")

		if metrics.M.ArtifactsAbandoned != nil {
			metrics.M.ArtifactsAbandoned.Inc()
		}

		return res
	}

	metaDest := metadataPath(videoDest)

	res.MetadataDownloaded = Attempt(ctx, func(ctx context.Context) error {
		return src.DownloadMetadata(ctx, file, metaDest)
	}, d.maxAttempts)

	if !res.MetadataDownloaded {
		logger.Error().Str("file", file).Msg("giving up on metadata download")
	}

	return res
}

// destPath flattens the camera's directory structure into
// <storage>/<identifier>_<basename>.
func (d *Downloader) destPath(identifier, file string) string {
	return filepath.Join(d.storageDir, identifier+"_"+filepath.Base(file))
}

func metadataPath(videoDest string) string {
	return strings.TrimSuffix(videoDest, filepath.Ext(videoDest)) + ".gpmf"
}
