package app

import (
	"context"

	"github.com/1ureka/tftprelay/internal/config"
	"github.com/1ureka/tftprelay/internal/responder"
	"github.com/1ureka/tftprelay/internal/transport"
)

// RunResponder binds the responder's port and serves pulled requests until
// the responder stops on its own or ctx is cancelled.
func RunResponder(ctx context.Context, cfg config.Config) (responder.Summary, error) {
	relayAddr, err := cfg.RelayServerAddr()
	if err != nil {
		return responder.Summary{}, err
	}

	ep, err := transport.Bind(cfg.ResponderPort)
	if err != nil {
		return responder.Summary{}, err
	}
	defer ep.Close()

	r := responder.New(ep, relayAddr, responder.Options{
		MaxCycles:    cfg.MaxCycles,
		ReplyTimeout: cfg.ReplyTimeout,
		CyclePause:   cfg.CyclePause,
		PollInterval: cfg.PollInterval,
	})
	return r.Run(ctx)
}
