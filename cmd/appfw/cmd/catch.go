package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"go-appfw/internal/appfw"
	"go-appfw/internal/core"
)

type catchOptions struct {
	events  string
	quit    string
	signals bool
}

func newCatchCmd() *cobra.Command {
	o := &catchOptions{}
	c := &cobra.Command{
		Use:   "catch",
		Short: "Subscribe for events and print them until the quit event",
		Example: `  appfw catch -e tick,tock -q bye
  appfw catch -e reload,bye -s`,
		RunE: func(cmd *cobra.Command, _ []string) error { return o.run(cmd) },
	}
	f := c.Flags()
	f.StringVarP(&o.events, "events", "e", "", "comma separated events to subscribe for")
	f.StringVarP(&o.quit, "quit", "q", "", "event to quit upon (default: last of --events)")
	f.BoolVarP(&o.signals, "signals", "s", false, "deliver SIGHUP and SIGTERM as system events")
	return c
}

// catchPlan returns the subscription list and quit event. The quit event
// is always subscribed.
func catchPlan(list, quit string) ([]string, string, error) {
	events := splitEvents(list)
	if len(events) == 0 {
		return nil, "", errors.New("no events given")
	}
	if quit == "" {
		return events, events[len(events)-1], nil
	}
	for _, e := range events {
		if e == quit {
			return events, quit, nil
		}
	}
	return append(events, quit), quit, nil
}

func (o *catchOptions) run(cmd *cobra.Command) error {
	events, quit, err := catchPlan(o.events, o.quit)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var s *session
	onEvent := func(name string, data core.Value) error {
		fmt.Fprintf(out, "%s %s\n", name, data)
		if name == quit {
			logger.Info().Str("event", name).Msg("quit event received")
			s.loop.Quit()
		}
		return nil
	}
	onStatus := func(seqno, status int, msg string, _ core.Value, _ any) error {
		if !core.Succeeded(status) {
			return fmt.Errorf("event subscription failed (%d: %s)", status, msg)
		}
		logger.Info().Int("seqno", seqno).Msg("subscribed for events")
		return nil
	}
	s, err = openSession(ctx, appfw.WithEventHandler(onEvent), appfw.WithStatusHandler(onStatus))
	if err != nil {
		return err
	}
	if err := s.app.SetSubscriptions(ctx, events...); err != nil {
		s.app.Close()
		return err
	}
	if o.signals {
		if err := s.app.EnableSignals(); err != nil {
			s.app.Close()
			return fmt.Errorf("bridge signals: %w", err)
		}
	}
	logger.Info().Strs("events", events).Str("quit", quit).Msg("waiting for events")
	return s.run(ctx)
}
