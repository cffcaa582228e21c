// Package responder pulls originator requests out of the relay, validates
// them and answers each one.
package responder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/1ureka/tftprelay/internal/protocol"
	"github.com/1ureka/tftprelay/internal/transport"
	"github.com/1ureka/tftprelay/internal/util"
)

// Respond builds the reply to a forwarded originator packet: Data for a
// read request, Ack for a write request. An invalid packet gets the Error
// packet and an error wrapping protocol.ErrInvalidPacket.
func Respond(pkt []byte) ([]byte, error) {
	req, err := protocol.DecodeRequest(pkt)
	if err != nil {
		return protocol.EncodeError(protocol.InvalidMessage), err
	}
	if req.IsRead {
		return protocol.EncodeData(protocol.DataPayload), nil
	}
	return protocol.EncodeAck(), nil
}

// Options tunes a Responder. Zero values fall back to the defaults below.
type Options struct {
	MaxCycles    int           // counted cycles before stopping; 0 = 11
	ReplyTimeout time.Duration // wait for the forwarded packet, then for the relay's ack
	CyclePause   time.Duration // minimum spacing between pulls; 0 = none
	PollInterval time.Duration // receive slice between ctx checks
}

const (
	defaultMaxCycles    = 11
	defaultReplyTimeout = 5 * time.Second
	defaultPollInterval = 250 * time.Millisecond
)

func (o *Options) applyDefaults() {
	if o.MaxCycles <= 0 {
		o.MaxCycles = defaultMaxCycles
	}
	if o.ReplyTimeout <= 0 {
		o.ReplyTimeout = defaultReplyTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
}

// Summary counts what a run did.
//
// Idle pulls are kept out of Cycles on purpose: MaxCycles bounds the work
// done, not the time spent waiting, so a responder started before the
// originator does not use up its budget on empty pulls.
type Summary struct {
	Cycles  int  // counted cycles: served, invalid, or timed out
	Served  int  // valid requests answered
	Idle    int  // pulls answered with the no-data sentinel; never part of Cycles
	Invalid bool // an invalid packet ended the run
}

// Responder talks only to the relay's responder-facing address.
type Responder struct {
	ep      *transport.Endpoint
	relay   *net.UDPAddr
	opts    Options
	limiter *rate.Limiter
}

// New creates a responder. The caller keeps ownership of ep.
func New(ep *transport.Endpoint, relay *net.UDPAddr, opts Options) *Responder {
	opts.applyDefaults()

	limit := rate.Inf
	if opts.CyclePause > 0 {
		limit = rate.Every(opts.CyclePause)
	}

	return &Responder{
		ep:      ep,
		relay:   relay,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Run pulls and answers until an invalid packet was handled, MaxCycles
// cycles were counted, or ctx is done. Only a closed endpoint is reported as
// an error; cancellation returns the summary so far and nil.
func (r *Responder) Run(ctx context.Context) (Summary, error) {
	var s Summary
	util.LogInfo("pulling from relay at %s", r.relay)

	for s.Cycles < r.opts.MaxCycles && !s.Invalid {
		if err := r.limiter.Wait(ctx); err != nil {
			break
		}
		if err := r.cycle(ctx, &s); err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return s, err
			}
			if ctx.Err() != nil {
				break
			}
		}
	}

	util.LogInfo("stopped after %d cycles: served %d, idle %d, invalid %t", s.Cycles, s.Served, s.Idle, s.Invalid)
	return s, nil
}

// cycle performs one pull. The returned error is informational except for
// transport.ErrClosed.
func (r *Responder) cycle(ctx context.Context, s *Summary) error {
	if err := r.ep.SendTo(protocol.Pull(), r.relay); err != nil {
		s.Cycles++
		util.LogWarning("pull failed: %v", err)
		return err
	}

	pkt, _, err := r.ep.ReceiveContext(ctx, r.opts.ReplyTimeout, r.opts.PollInterval)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		s.Cycles++
		util.LogWarning("cycle %d: nothing from relay: %v", s.Cycles, err)
		return err
	}

	if protocol.IsNoData(pkt) {
		s.Idle++
		util.LogDebug("no data queued at relay")
		return nil
	}

	s.Cycles++
	util.LogDebug("cycle %d: received %s", s.Cycles, protocol.Render(pkt))

	reply, err := Respond(pkt)
	if err != nil {
		s.Invalid = true
		util.LogWarning("cycle %d: %v", s.Cycles, err)
	} else {
		s.Served++
	}

	if err := r.ep.SendTo(reply, r.relay); err != nil {
		util.LogWarning("cycle %d: reply failed: %v", s.Cycles, err)
		return err
	}
	util.LogInfo("cycle %d: answered %s with %s", s.Cycles, protocol.Classify(pkt), protocol.Classify(reply))

	ack, _, err := r.ep.ReceiveContext(ctx, r.opts.ReplyTimeout, r.opts.PollInterval)
	if err != nil {
		util.LogWarning("cycle %d: no ack from relay: %v", s.Cycles, err)
		return err
	}
	if k := protocol.Classify(ack); k != protocol.KindAck {
		util.LogWarning("cycle %d: expected ack from relay, got %s", s.Cycles, k)
		return fmt.Errorf("cycle %d: unexpected %s", s.Cycles, k)
	}
	return nil
}
