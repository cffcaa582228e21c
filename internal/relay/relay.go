// Package relay sits between the originator and the responder. Originator
// packets arrive on one endpoint and wait in a bounded queue until the
// responder pulls them through the other endpoint; replies travel back the
// same way. The relay never interprets the packets it forwards.
package relay

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/1ureka/tftprelay/internal/protocol"
	"github.com/1ureka/tftprelay/internal/transport"
	"github.com/1ureka/tftprelay/internal/util"
)

// Options tunes a Relay. Zero durations and depth fall back to the defaults
// below.
type Options struct {
	QueueDepth   int
	QueueWait    time.Duration // pull → wait for a queued packet
	ReplyTimeout time.Duration // forward → wait for the responder's reply
	PollInterval time.Duration // receive slice between stop checks

	Clock    clock.Clock // queue timers; nil = wall clock
	Observer Observer    // optional
}

const (
	defaultQueueWait    = 2 * time.Second
	defaultReplyTimeout = 5 * time.Second
	defaultPollInterval = 250 * time.Millisecond
)

func (o *Options) applyDefaults() {
	if o.QueueDepth <= 0 {
		o.QueueDepth = 1
	}
	if o.QueueWait <= 0 {
		o.QueueWait = defaultQueueWait
	}
	if o.ReplyTimeout <= 0 {
		o.ReplyTimeout = defaultReplyTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
}

// Relay owns the originator-facing (client) and responder-facing (server)
// endpoints and the queue between them.
type Relay struct {
	id     uuid.UUID
	client *transport.Endpoint
	server *transport.Endpoint
	queue  *Queue
	opts   Options
	seq    atomic.Uint64

	mu         sync.Mutex
	originator *net.UDPAddr // source of the latest originator packet
	responder  *net.UDPAddr // source of the latest pull
}

// New creates a relay over two already-bound endpoints. The relay takes
// ownership of both; Close releases them.
func New(client, server *transport.Endpoint, opts Options) *Relay {
	opts.applyDefaults()
	return &Relay{
		id:     uuid.New(),
		client: client,
		server: server,
		queue:  NewQueue(opts.QueueDepth, opts.Clock),
		opts:   opts,
	}
}

// ID identifies this relay run in logs and events.
func (r *Relay) ID() uuid.UUID { return r.id }

// ClientAddr is the bound originator-facing address.
func (r *Relay) ClientAddr() *net.UDPAddr { return r.client.LocalAddr() }

// ServerAddr is the bound responder-facing address.
func (r *Relay) ServerAddr() *net.UDPAddr { return r.server.LocalAddr() }

// Peers returns the most recently observed originator and responder
// addresses; either may be nil.
func (r *Relay) Peers() (originator, responder *net.UDPAddr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.originator, r.responder
}

// QueueStats returns the queue counters.
func (r *Relay) QueueStats() QueueStats { return r.queue.Stats() }

// Run starts both loops and blocks until ctx is done and both have returned.
// Stopping is cooperative: each loop notices ctx after its current receive
// or queue wait returns. Run returns nil on a normal stop.
func (r *Relay) Run(ctx context.Context) error {
	util.LogInfo("relay %s: client side %s, server side %s", r.id, r.ClientAddr(), r.ServerAddr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.clientLoop(gctx) })
	g.Go(func() error { return r.serverLoop(gctx) })

	err := g.Wait()
	st := r.queue.Stats()
	util.LogInfo("relay %s stopped: queued %d, forwarded %d, dropped %d", r.id, st.Pushed, st.Popped, st.Dropped)
	return err
}

// Close releases both endpoints.
func (r *Relay) Close() error {
	return multierr.Combine(r.client.Close(), r.server.Close())
}

// ---------------------------------------------------------------------------
// Client-facing loop
// ---------------------------------------------------------------------------

// clientLoop queues every originator packet and immediately acknowledges its
// receipt. The receipt is independent of the responder's eventual reply.
func (r *Relay) clientLoop(ctx context.Context) error {
	util.LogDebug("client handler started")
	defer util.LogDebug("client handler stopped")

	for {
		data, from, err := r.client.Receive(r.opts.PollInterval)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			if errors.Is(err, transport.ErrClosed) {
				return err
			}
			util.LogWarning("client side receive failed: %v", err)
			continue
		}

		r.mu.Lock()
		r.originator = from
		r.mu.Unlock()

		tag := util.AddrTag(from)
		util.LogDebug("[%08x] from originator: %s", tag, protocol.Render(data))

		// The receipt and the enqueue event go out before the server loop can
		// forward the packet, so the originator always sees the receipt ahead
		// of the response.
		var ackErr error
		err = r.queue.PushWith(Item{Data: data, From: from}, func() {
			r.emit(EventEnqueue, from, data)
			ackErr = r.client.SendTo(protocol.EncodeAck(), from)
		})
		if err != nil {
			util.LogWarning("[%08x] dropped originator packet: %v", tag, err)
			r.emit(EventDrop, from, data)
			continue
		}

		if ackErr != nil {
			util.LogWarning("[%08x] receipt ack failed: %v", tag, ackErr)
			continue
		}
		util.LogInfo("[%08x] queued %d bytes, receipt sent", tag, len(data))
	}
}

// ---------------------------------------------------------------------------
// Server-facing loop
// ---------------------------------------------------------------------------

// serverLoop answers every responder pull with either the oldest queued
// packet or, after QueueWait, the no-data sentinel.
func (r *Relay) serverLoop(ctx context.Context) error {
	util.LogDebug("server handler started")
	defer util.LogDebug("server handler stopped")

	for {
		pull, from, err := r.server.Receive(r.opts.PollInterval)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			if errors.Is(err, transport.ErrClosed) {
				return err
			}
			util.LogWarning("server side receive failed: %v", err)
			continue
		}

		tag := util.AddrTag(from)
		if k := protocol.Classify(pull); k != protocol.KindPull {
			util.LogWarning("[%08x] expected a pull, got %s; dropped", tag, k)
			continue
		}

		r.mu.Lock()
		r.responder = from
		r.mu.Unlock()

		item, ok := r.queue.Pop(ctx, r.opts.QueueWait)
		if ctx.Err() != nil {
			return nil
		}
		if !ok {
			if err := r.server.SendTo(protocol.NoData(), from); err != nil {
				util.LogWarning("[%08x] no-data reply failed: %v", tag, err)
				continue
			}
			r.emit(EventNoData, from, nil)
			util.LogDebug("[%08x] nothing queued, sent no-data", tag)
			continue
		}

		r.serve(ctx, item, from)
	}
}

// serve forwards one queued packet to the responder, relays the reply back
// to the originator and acknowledges the reply to the responder.
func (r *Relay) serve(ctx context.Context, item Item, responder *net.UDPAddr) {
	rtag := util.AddrTag(responder)
	otag := util.AddrTag(item.From)

	if err := r.server.SendTo(item.Data, responder); err != nil {
		util.LogWarning("[%08x] forward failed, packet lost: %v", rtag, err)
		return
	}
	r.emit(EventForward, responder, item.Data)
	util.LogDebug("[%08x] forwarded after %s in queue: %s", rtag, r.opts.Clock.Since(item.At).Round(time.Millisecond), protocol.Render(item.Data))

	reply, from, err := r.awaitReply(ctx, rtag)
	if err != nil {
		if ctx.Err() == nil {
			util.LogWarning("[%08x] no reply from responder: %v", rtag, err)
			r.emit(EventTimeout, responder, nil)
		}
		return
	}
	util.LogDebug("[%08x] from responder: %s", rtag, protocol.Render(reply))

	if err := r.server.SendTo(protocol.EncodeAck(), from); err != nil {
		util.LogWarning("[%08x] ack to responder failed: %v", rtag, err)
	}

	if err := r.client.SendTo(reply, item.From); err != nil {
		util.LogWarning("[%08x] reply to originator failed: %v", otag, err)
		return
	}
	r.emit(EventReply, item.From, reply)
	util.LogInfo("[%08x] relayed %s reply to originator", otag, protocol.Classify(reply))
}

// awaitReply waits up to ReplyTimeout for the responder's reply. Pulls that
// arrive meanwhile are not replies and are dropped; the responder retries
// them after its own timeout.
func (r *Relay) awaitReply(ctx context.Context, rtag uint32) ([]byte, *net.UDPAddr, error) {
	deadline := time.Now().Add(r.opts.ReplyTimeout)
	for {
		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, nil, transport.ErrTimeout
		}

		data, from, err := r.server.ReceiveContext(ctx, wait, r.opts.PollInterval)
		if err != nil {
			return nil, nil, err
		}
		if protocol.Classify(data) == protocol.KindPull {
			util.LogWarning("[%08x] pull while waiting for a reply; dropped", rtag)
			continue
		}
		return data, from, nil
	}
}

func (r *Relay) emit(kind EventKind, peer *net.UDPAddr, data []byte) {
	if r.opts.Observer == nil {
		return
	}
	ev := Event{
		Relay: r.id.String(),
		Seq:   r.seq.Add(1),
		Time:  time.Now(),
		Kind:  kind,
		Size:  len(data),
	}
	if peer != nil {
		ev.Peer = peer.String()
	}
	if data != nil {
		ev.Packet = protocol.Render(data)
	}
	r.opts.Observer.Observe(ev)
}
