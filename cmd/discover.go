package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bavix/camfleet/internal/config"
	"github.com/bavix/camfleet/internal/discovery"
)

// newDiscoverCmd lists the cameras currently advertising on the LAN and
// exits. Useful for checking cabling before committing to a session.
func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "List cameras advertising on the local network",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := zerolog.Ctx(ctx)

			path := cfgFile
			if path == "" {
				path = defaultConfigPath
			}

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			listener, err := discovery.ListenMDNS(ctx, cfg.Discovery.Service)
			if err != nil {
				return err
			}

			defer func() { _ = listener.Close() }()

			names, err := discovery.New(cfg.Discovery.Quiescence).Discover(ctx, listener)
			if err != nil {
				return err
			}

			if len(names) == 0 {
				log.Warn().Msg("no cameras found")

				return nil
			}

			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}

			return nil
		},
	}
}
