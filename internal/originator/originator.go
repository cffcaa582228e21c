// Package originator drives the fixed request sequence against the relay and
// records what came back for each request.
package originator

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/1ureka/tftprelay/internal/protocol"
	"github.com/1ureka/tftprelay/internal/transport"
	"github.com/1ureka/tftprelay/internal/util"
)

// Options tunes an Originator. Zero values fall back to the defaults below.
type Options struct {
	Requests     int           // number of requests; 0 = 11
	InvalidIndex *int          // request replaced by the malformed packet; nil = 9, negative disables
	Mode         string        // transfer mode; "" = netascii
	ReplyTimeout time.Duration // wait for the receipt, then again for the response
	PollInterval time.Duration // receive slice between ctx checks
}

const (
	defaultRequests     = 11
	defaultInvalidIndex = 9
	defaultReplyTimeout = 5 * time.Second
	defaultPollInterval = 250 * time.Millisecond
)

func (o *Options) applyDefaults() {
	if o.Requests <= 0 {
		o.Requests = defaultRequests
	}
	if o.InvalidIndex == nil {
		o.InvalidIndex = InvalidAt(defaultInvalidIndex)
	}
	if o.Mode == "" {
		o.Mode = protocol.DefaultMode
	}
	if o.ReplyTimeout <= 0 {
		o.ReplyTimeout = defaultReplyTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
}

// InvalidAt returns an Options.InvalidIndex selecting request i; a negative i
// disables the malformed request.
func InvalidAt(i int) *int { return &i }

// Result is the outcome of one request.
type Result struct {
	Index    int
	Kind     protocol.Kind // kind of the packet sent
	Sent     []byte
	Receipt  []byte // relay's receipt, nil if none arrived
	Response []byte // responder's reply relayed back, nil if none arrived
	Elapsed  time.Duration
	Stale    int // late packets from earlier requests that were discarded
	Err      error
}

// OK reports whether both the receipt and the response arrived.
func (r Result) OK() bool { return r.Err == nil && r.Receipt != nil && r.Response != nil }

// BuildRequest returns the packet for request index: a write request for an
// even index, a read request for an odd one, and the malformed Error-shaped
// packet when index equals invalidIndex.
func BuildRequest(index int, filename, mode string, invalidIndex int) ([]byte, error) {
	if index == invalidIndex {
		return protocol.InvalidRequest(), nil
	}
	return protocol.EncodeRequest(filename, mode, index%2 == 1)
}

// Originator sends requests from its own endpoint to the relay's
// originator-facing address, one at a time.
type Originator struct {
	id       uuid.UUID
	ep       *transport.Endpoint
	target   *net.UDPAddr
	filename string
	opts     Options
}

// New creates an originator. The caller keeps ownership of ep.
func New(ep *transport.Endpoint, target *net.UDPAddr, filename string, opts Options) *Originator {
	opts.applyDefaults()
	return &Originator{
		id:       uuid.New(),
		ep:       ep,
		target:   target,
		filename: filename,
		opts:     opts,
	}
}

// ID identifies this run in logs.
func (o *Originator) ID() uuid.UUID { return o.id }

// Run sends every request in order and returns one Result per request sent.
// A failed request is recorded and the run moves on; only ctx cancellation
// ends the run early.
func (o *Originator) Run(ctx context.Context) []Result {
	util.LogInfo("run %s: %d requests for %q to %s", o.id, o.opts.Requests, o.filename, o.target)

	results := make([]Result, 0, o.opts.Requests)
	for i := 0; i < o.opts.Requests; i++ {
		if ctx.Err() != nil {
			util.LogWarning("run cancelled after %d requests", i)
			break
		}

		res := o.exchange(ctx, i)
		results = append(results, res)

		switch {
		case res.Err != nil:
			util.LogWarning("request %d (%s): %v", i, res.Kind, res.Err)
		default:
			util.LogInfo("request %d (%s): received %s", i, res.Kind, protocol.Classify(res.Response))
		}
	}
	return results
}

// exchange performs one request: send, wait for the receipt, wait for the
// response. Replies that arrive after their request timed out are discarded
// so they are never paired with a later request.
func (o *Originator) exchange(ctx context.Context, index int) (res Result) {
	start := time.Now()
	res.Index = index
	defer func() { res.Elapsed = time.Since(start) }()

	pkt, err := BuildRequest(index, o.filename, o.opts.Mode, *o.opts.InvalidIndex)
	if err != nil {
		res.Err = fmt.Errorf("build: %w", err)
		return res
	}
	res.Kind = protocol.Classify(pkt)
	res.Sent = pkt

	if n := o.ep.Drain(); n > 0 {
		res.Stale += n
		util.LogWarning("request %d: discarded %d late packets", index, n)
	}

	if err := o.ep.SendTo(pkt, o.target); err != nil {
		res.Err = err
		return res
	}
	util.LogDebug("sent: %s", protocol.Render(pkt))

	receipt, err := o.await(ctx, &res, isReceipt)
	if err != nil {
		res.Err = fmt.Errorf("waiting for receipt: %w", err)
		return res
	}
	res.Receipt = receipt
	util.LogDebug("receipt: %s", protocol.Render(receipt))

	response, err := o.await(ctx, &res, responseTo(res.Kind))
	if err != nil {
		res.Err = fmt.Errorf("waiting for response: %w", err)
		return res
	}
	res.Response = response
	util.LogDebug("response: %s", protocol.Render(response))
	return res
}

// await waits up to ReplyTimeout for a packet whose kind want accepts.
// Anything else is a leftover from an earlier request and is counted in
// res.Stale.
func (o *Originator) await(ctx context.Context, res *Result, want func(protocol.Kind) bool) ([]byte, error) {
	deadline := time.Now().Add(o.opts.ReplyTimeout)
	for {
		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, transport.ErrTimeout
		}

		data, _, err := o.ep.ReceiveContext(ctx, wait, o.opts.PollInterval)
		if err != nil {
			return nil, err
		}
		if k := protocol.Classify(data); !want(k) {
			res.Stale++
			util.LogWarning("request %d: discarded late %s", res.Index, k)
			continue
		}
		return data, nil
	}
}

func isReceipt(k protocol.Kind) bool { return k == protocol.KindAck }

// responseTo returns the reply kinds the responder can produce for a packet
// of kind sent.
func responseTo(sent protocol.Kind) func(protocol.Kind) bool {
	return func(k protocol.Kind) bool {
		switch sent {
		case protocol.KindReadRequest:
			return k == protocol.KindData || k == protocol.KindError
		case protocol.KindWriteRequest:
			return k == protocol.KindAck || k == protocol.KindError
		default:
			return k == protocol.KindError
		}
	}
}
