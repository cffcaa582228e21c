// Package app contains the top-level orchestration for the originator, relay
// and responder roles: it binds endpoints from the configuration and runs
// the role until it finishes or the context is cancelled.
package app

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/1ureka/tftprelay/internal/config"
	"github.com/1ureka/tftprelay/internal/relay"
	"github.com/1ureka/tftprelay/internal/transport"
	"github.com/1ureka/tftprelay/internal/util"
)

// NewRelay binds the relay's originator-facing and responder-facing
// endpoints. The returned relay owns both; a bind failure releases whatever
// was already bound.
func NewRelay(cfg config.Config, observer relay.Observer) (*relay.Relay, error) {
	client, err := transport.Bind(cfg.ClientPort)
	if err != nil {
		return nil, err
	}

	server, err := transport.Bind(cfg.ServerPort)
	if err != nil {
		return nil, multierr.Append(err, client.Close())
	}

	return relay.New(client, server, relay.Options{
		QueueDepth:   cfg.QueueDepth,
		QueueWait:    cfg.QueueWait,
		ReplyTimeout: cfg.ReplyTimeout,
		PollInterval: cfg.PollInterval,
		Observer:     observer,
	}), nil
}

// RunRelay orchestrates the relay lifecycle:
//  1. Bind both endpoints
//  2. Run both loops for cfg.RelayLifetime, or until ctx is cancelled
//  3. Release the endpoints
func RunRelay(ctx context.Context, cfg config.Config, observer relay.Observer) error {
	// ── 1. Bind ────────────────────────────────────────────────────────
	r, err := NewRelay(cfg, observer)
	if err != nil {
		return err
	}

	// ── 2. Run for the configured lifetime ─────────────────────────────
	runCtx, cancel := context.WithTimeout(ctx, cfg.RelayLifetime)
	defer cancel()

	util.LogSuccess("relay %s up for %s", r.ID(), cfg.RelayLifetime)
	runErr := r.Run(runCtx)

	// ── 3. Release ─────────────────────────────────────────────────────
	if err := multierr.Combine(runErr, r.Close()); err != nil {
		return fmt.Errorf("relay %s: %w", r.ID(), err)
	}
	return nil
}
