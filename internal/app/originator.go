package app

import (
	"context"

	"github.com/1ureka/tftprelay/internal/config"
	"github.com/1ureka/tftprelay/internal/originator"
	"github.com/1ureka/tftprelay/internal/transport"
)

// RunOriginator binds an ephemeral endpoint and sends the request sequence
// for filename to the relay. Only setup failures are returned as errors;
// per-request failures are in the results.
func RunOriginator(ctx context.Context, cfg config.Config, filename string) ([]originator.Result, error) {
	target, err := cfg.RelayClientAddr()
	if err != nil {
		return nil, err
	}

	ep, err := transport.Bind(0)
	if err != nil {
		return nil, err
	}
	defer ep.Close()

	o := originator.New(ep, target, filename, originator.Options{
		Requests:     cfg.Requests,
		InvalidIndex: originator.InvalidAt(cfg.InvalidIndex),
		Mode:         cfg.Mode,
		ReplyTimeout: cfg.ReplyTimeout,
		PollInterval: cfg.PollInterval,
	})
	return o.Run(ctx), nil
}
