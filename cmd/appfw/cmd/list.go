package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go-appfw/internal/appfw"
	"go-appfw/internal/core"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "list [running|all]",
		Short:     "List running or installed applications",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"running", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			which := "running"
			if len(args) == 1 {
				which = args[0]
			}
			return runList(cmd, which)
		},
	}
}

func runList(cmd *cobra.Command, which string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}

	var failed error
	onList := func(apps []core.AppInfo, _, status int, msg string, _ any) error {
		defer s.loop.Quit()
		if !core.Succeeded(status) {
			failed = fmt.Errorf("list %s failed (%d: %s)", which, status, msg)
			return nil
		}
		printApps(cmd, apps)
		return nil
	}

	list := s.app.ListRunning
	if which == "all" {
		list = s.app.ListAll
	}
	if err := list(ctx, appfw.ListCallback(onList), nil); err != nil {
		s.app.Close()
		return err
	}
	if err := s.run(ctx); err != nil {
		return err
	}
	return failed
}

func printApps(cmd *cobra.Command, apps []core.AppInfo) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "APPID\tDESKTOP\tUSER\tDESCRIPTION")
	for _, a := range apps {
		desktop := a.Desktop
		if desktop == "" {
			desktop = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", a.AppID, desktop, a.User, strings.TrimSpace(a.Description))
	}
	w.Flush()
}
