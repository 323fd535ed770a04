package cmd

import (
	"context"
	"errors"
	"fmt"

	"go-appfw/internal/appfw"
	"go-appfw/internal/config"
	"go-appfw/internal/mainloop"
	"go-appfw/internal/transport"
)

// session is an App together with the loop it dispatches on.
type session struct {
	loop *mainloop.Loop
	app  *appfw.App
}

// transportFor is replaced in tests.
var transportFor = newTransport

func newTransport(c *config.Config, loop *mainloop.Loop) (transport.Transport, error) {
	identity := transport.LocalIdentity(c.AppID)
	switch c.Transport {
	case config.TransportRedis:
		return transport.NewRedisTransport(transport.RedisConfig{
			Options:  c.RedisOptions(),
			Prefix:   c.Prefix,
			Identity: identity,
		}, loop, &logger), nil
	case config.TransportWebSocket:
		return transport.NewWebSocketTransport(transport.WebSocketConfig{
			URL:      c.RelayURL,
			Identity: identity,
		}, loop, &logger), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", c.Transport)
	}
}

func openSession(ctx context.Context, opts ...appfw.Option) (*session, error) {
	loop := mainloop.New()
	tr, err := transportFor(cfg, loop)
	if err != nil {
		return nil, err
	}
	app, err := appfw.New(ctx, tr, append([]appfw.Option{appfw.WithLogger(logger)}, opts...)...)
	if err != nil {
		_ = tr.Close()
		return nil, err
	}
	if len(cfg.Debug) > 0 {
		app.EnableDebug(cfg.Debug...)
	}
	return &session{loop: loop, app: app}, nil
}

// run drives the loop until Quit or interruption and closes the App.
func (s *session) run(ctx context.Context) error {
	defer s.app.Close()
	err := s.loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info().Msg("interrupted")
		return nil
	}
	return err
}
