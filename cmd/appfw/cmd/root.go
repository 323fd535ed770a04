// Package cmd holds the appfw command tree.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"go-appfw/internal/config"
	"go-appfw/internal/logging"
)

var (
	configFile string
	verbose    bool
	debugSpecs []string
	transportF string
	appID      string

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "appfw",
	Short: "Application event bus tools",
	Long: `appfw talks to the application event relay. It can send events to
other applications, wait for events, list applications and run the relay
itself.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (YAML)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	flags.StringSliceVarP(&debugSpecs, "debug", "d", nil, "enable debug sites (site, @site, -site, *)")
	flags.StringVar(&transportF, "transport", "", "relay transport: redis or websocket")
	flags.StringVar(&appID, "identity", "", "application id to announce to the relay")

	rootCmd.AddCommand(newSendCmd(), newCatchCmd(), newListCmd(), newRelayCmd())
}

// setup loads configuration and applies flag overrides.
func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if transportF != "" {
		c.Transport = transportF
	}
	if appID != "" {
		c.AppID = appID
	}
	if len(debugSpecs) > 0 {
		c.Debug = append(c.Debug, debugSpecs...)
	}
	if verbose {
		c.Log.Level = "debug"
	}
	if err := c.Validate(); err != nil {
		return err
	}
	c.Log.Output = cmd.ErrOrStderr()
	cfg = c
	logger = logging.New(cmd.Root().Name(), c.Log)
	if c.ConfigFile != "" {
		logger.Debug().Str("file", c.ConfigFile).Msg("using config file")
	}
	return nil
}
