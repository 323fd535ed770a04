package cmd

import (
	"github.com/spf13/cobra"

	"go-appfw/internal/relay"
)

func newRelayCmd() *cobra.Command {
	var (
		listen   string
		store    string
		manifest string
		noRedis  bool
	)
	c := &cobra.Command{
		Use:   "relay",
		Short: "Run the event relay",
		Long: `relay serves clients over Redis Pub/Sub and over WebSocket at /ws,
with Prometheus metrics at /metrics. Installed applications are read
from a YAML manifest.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rc := relay.Config{
				Listen:       cfg.Listen,
				Prefix:       cfg.Prefix,
				Store:        cfg.Store,
				Manifest:     cfg.Manifest,
				DebugFilters: cfg.Debug,
			}
			if cmd.Flags().Changed("listen") {
				rc.Listen = listen
			}
			if cmd.Flags().Changed("store") {
				rc.Store = store
			}
			if cmd.Flags().Changed("manifest") {
				rc.Manifest = manifest
			}
			if !noRedis {
				rc.Redis = cfg.RedisOptions()
			}
			srv, err := relay.NewServer(cmd.Context(), rc, &logger)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
	f := c.Flags()
	f.StringVar(&listen, "listen", "", "WebSocket and metrics listen address (empty disables)")
	f.StringVar(&store, "store", "", "application store: memory or redis")
	f.StringVarP(&manifest, "manifest", "m", "", "application manifest (YAML)")
	f.BoolVar(&noRedis, "no-redis", false, "do not serve clients over Redis")
	return c
}
