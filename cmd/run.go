package cmd

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bavix/camfleet/internal/adminhttp"
	"github.com/bavix/camfleet/internal/camera"
	"github.com/bavix/camfleet/internal/config"
	"github.com/bavix/camfleet/internal/discovery"
	"github.com/bavix/camfleet/internal/fleet"
	"github.com/bavix/camfleet/internal/gopro"
	"github.com/bavix/camfleet/internal/metrics"
	"github.com/bavix/camfleet/internal/plugin"
	"github.com/bavix/camfleet/internal/version"
)

var runDuration time.Duration //nolint:gochecknoglobals // cobra command flag

const defaultConfigPath = "/etc/camfleet/config.yaml"

// staticHost adapts the storage directory from config to the host-session
// interface the plugin layer expects.
type staticHost struct{ dir string }

func (h staticHost) StorageDirectory() string { return h.dir }

func newRunCmd() *cobra.Command { //nolint:funlen
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Arm the fleet, record, then collect artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := zerolog.Ctx(ctx)

			log.Info().
				Str("version", version.GetVersion()).
				Str("build_time", version.GetBuildTime()).
				Msg("camfleet starting")

			path := cfgFile
			if path == "" {
				path = defaultConfigPath
			}

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			metrics.RegisterCollectors()
			metrics.SetService(cfg.AppName)
			metrics.BindService()
			log.Info().Str("config", path).Msg("starting")

			// Transfer knobs follow config file edits while a session runs.
			watcher, err := config.NewWatcher()
			if err != nil {
				return err
			}

			defer func() { _ = watcher.Close() }()

			watcher.OnChange(func() {
				if err := cfg.Reload(); err != nil {
					log.Warn().Err(err).Msg("config reload failed")
				}
			})
			watcher.Watch(ctx, []string{path})

			var coord *fleet.Coordinator

			pl, err := plugin.New(ctx, staticHost{dir: cfg.Storage.Dir}, func(storageDir string) plugin.SessionDriver {
				coord = fleet.New(cfg, storageDir, listenFunc(cfg), connectFunc(cfg))

				return coord
			})
			if err != nil {
				return err
			}

			if cfg.HTTP.Enabled {
				admin := adminhttp.NewServer(&cfg.HTTP, coord)
				if err := admin.Start(ctx); err != nil {
					return err
				}
			}

			if err := pl.SessionStarted(); err != nil {
				return err
			}

			log.Info().Str("storage", pl.StorageDir()).Msg("recording")

			waitRecording(ctx, runDuration)

			// Artifact collection must survive the shutdown signal that
			// ended the recording.
			return coord.End(log.WithContext(context.WithoutCancel(ctx)))
		},
	}
	cmd.Flags().DurationVar(&runDuration, "duration", 0, "Stop recording after this long (default: record until signalled)")

	return cmd
}

func listenFunc(cfg *config.Config) fleet.ListenFunc {
	return func(ctx context.Context) (discovery.Listener, error) {
		return discovery.ListenMDNS(ctx, cfg.Discovery.Service)
	}
}

func connectFunc(cfg *config.Config) fleet.ConnectFunc {
	return func(ctx context.Context, identifier string) (fleet.Camera, error) {
		handle, err := gopro.New(identifier)
		if err != nil {
			return nil, err
		}

		return camera.Connect(ctx, identifier, handle, cfg.Fleet.CommandTimeout)
	}
}

// waitRecording blocks until the requested duration elapses or the process
// is signalled, whichever comes first.
func waitRecording(ctx context.Context, duration time.Duration) {
	if duration <= 0 {
		<-ctx.Done()

		return
	}

	t := time.NewTimer(duration)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
