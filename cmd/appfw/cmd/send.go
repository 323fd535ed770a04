package cmd

import (
	"errors"
	"fmt"
	"os/user"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"go-appfw/internal/appfw"
	"go-appfw/internal/core"
)

type sendOptions struct {
	target   appfw.Target
	events   string
	quit     string
	data     string
	count    int
	interval time.Duration
}

func newSendCmd() *cobra.Command {
	o := &sendOptions{}
	c := &cobra.Command{
		Use:   "send",
		Short: "Send events periodically, then a final quit event",
		Long: `send emits events from --events in turn every --interval until
--nevent events are sent, then sends the quit event and exits once the
relay has acknowledged it. Without target flags events go to the
applications of the current user.`,
		Example: `  appfw send -a org.example.clock -e tick,tock -q bye -n 10 -I 500ms
  appfw send -u alice -e reload -D '{"force":true}' -n 1`,
		RunE: func(cmd *cobra.Command, _ []string) error { return o.run(cmd) },
	}
	f := c.Flags()
	f.StringVarP(&o.target.Label, "label", "l", "", "target application label")
	f.StringVarP(&o.target.AppID, "appid", "a", "", "target application id")
	f.StringVarP(&o.target.Binary, "binary", "b", "", "target application binary path")
	f.StringVarP(&o.target.User, "user", "u", "", "target application user name")
	f.IntVarP(&o.target.Process, "process", "p", 0, "target application process id")
	f.StringVarP(&o.events, "events", "e", "", "comma separated events to send")
	f.StringVarP(&o.quit, "quit", "q", "", "last event to send (default: last of --events)")
	f.StringVarP(&o.data, "data", "D", "", "JSON object attached to every event")
	f.IntVarP(&o.count, "nevent", "n", 25, "number of events to send")
	f.DurationVarP(&o.interval, "interval", "I", time.Second, "delay between events")
	return c
}

// splitEvents splits a comma separated list, dropping blanks.
func splitEvents(list string) []string {
	var out []string
	for _, e := range strings.Split(list, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// sendPlan derives the events to cycle through and the quit event.
func sendPlan(list, quit string) ([]string, string, error) {
	events := splitEvents(list)
	if quit == "" {
		if len(events) < 2 {
			return nil, "", errors.New("need at least two events, or --quit")
		}
		return events[:len(events)-1], events[len(events)-1], nil
	}
	if len(events) == 0 {
		return nil, "", errors.New("no events given")
	}
	return events, quit, nil
}

func parseData(raw string) (core.Value, error) {
	if raw == "" {
		return core.Object(), nil
	}
	v, err := core.Parse([]byte(raw))
	if err != nil {
		return core.Value{}, fmt.Errorf("--data: %w", err)
	}
	if v.Kind() != core.KindObject {
		return core.Value{}, errors.New("--data: must be a JSON object")
	}
	return v, nil
}

func (o *sendOptions) run(cmd *cobra.Command) error {
	events, quit, err := sendPlan(o.events, o.quit)
	if err != nil {
		return err
	}
	data, err := parseData(o.data)
	if err != nil {
		return err
	}
	if o.target.IsZero() {
		u, err := user.Current()
		if err != nil {
			return fmt.Errorf("current user: %w", err)
		}
		o.target.User = u.Username
	}

	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}

	var failed error
	sent := 0
	ack := func(seqno, status int, msg string, userData any) error {
		n := userData.(int)
		if core.Succeeded(status) {
			logger.Info().Int("request", n).Int("seqno", seqno).Msg("event delivered")
		} else {
			if msg == "" {
				msg = "unknown error"
			}
			logger.Error().Int("request", n).Int("status", status).Str("message", msg).Msg("event delivery failed")
		}
		if n == o.count {
			s.loop.Quit()
		}
		return nil
	}
	send := func() bool {
		event := quit
		if sent < o.count {
			event = events[sent%len(events)]
		}
		payload := data.Set("count", core.Int(int64(sent)))
		logger.Info().Str("event", event).Str("data", payload.String()).Msg("sending event")
		if err := s.app.SendEvent(ctx, event, payload, o.target, ack, sent); err != nil {
			failed = err
			s.loop.Quit()
			return false
		}
		sent++
		return sent <= o.count
	}
	stop := s.loop.AddTimeout(o.interval, send)
	defer stop()

	if err := s.run(ctx); err != nil {
		return err
	}
	return failed
}
