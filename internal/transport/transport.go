// Package transport provides the datagram Endpoint every role talks through:
// a bound UDP socket with blocking send and receive-with-timeout.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/1ureka/tftprelay/internal/util"
)

// readBufferSize is large enough for any UDP payload, so a datagram is never
// truncated.
const readBufferSize = 64 * 1024

// Endpoint owns one UDP socket.
//
// SendTo may be called from several goroutines. Receive must only be called
// from one goroutine at a time; the receive buffer is reused.
type Endpoint struct {
	conn *net.UDPConn
	buf  []byte

	closeOnce sync.Once
	closeErr  error
}

// Bind opens a UDP endpoint on the given port of all IPv4 interfaces.
// Port 0 selects an ephemeral port.
func Bind(port int) (*Endpoint, error) {
	return BindAddr(fmt.Sprintf("0.0.0.0:%d", port))
}

// BindAddr opens a UDP endpoint on addr ("host:port").
func BindAddr(addr string) (*Endpoint, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, &Error{Op: OpBind, Addr: addr, Err: err}
	}

	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, &Error{Op: OpBind, Addr: addr, Err: err}
	}

	return &Endpoint{
		conn: conn,
		buf:  make([]byte, readBufferSize),
	}, nil
}

// LocalAddr returns the bound address, with the real port when an ephemeral
// port was requested.
func (e *Endpoint) LocalAddr() *net.UDPAddr {
	return e.conn.LocalAddr().(*net.UDPAddr)
}

// SendTo writes one datagram to addr. Delivery is not guaranteed.
func (e *Endpoint) SendTo(data []byte, addr *net.UDPAddr) error {
	if addr == nil {
		return &Error{Op: OpSend, Addr: "<nil>", Err: errors.New("no destination address")}
	}

	n, err := e.conn.WriteToUDP(data, addr)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			err = ErrClosed
		}
		return &Error{Op: OpSend, Addr: addr.String(), Err: err}
	}

	util.Stats.AddSent(n)
	return nil
}

// Receive blocks until one datagram arrives or timeout elapses. The returned
// slice is a fresh copy owned by the caller. A non-positive timeout blocks
// until a datagram arrives or the endpoint is closed.
func (e *Endpoint) Receive(timeout time.Duration) ([]byte, *net.UDPAddr, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := e.conn.SetReadDeadline(deadline); err != nil {
		return nil, nil, e.receiveError(err)
	}

	n, from, err := e.conn.ReadFromUDP(e.buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			util.Stats.AddTimeout()
			return nil, nil, ErrTimeout
		}
		return nil, nil, e.receiveError(err)
	}

	util.Stats.AddRecv(n)

	data := make([]byte, n)
	copy(data, e.buf[:n])
	return data, from, nil
}

// ReceiveContext is Receive bounded by both timeout and ctx. It receives in
// slices of at most poll so that a cancelled ctx is noticed without waiting
// out the whole timeout; it then returns ctx.Err().
func (e *Endpoint) ReceiveContext(ctx context.Context, timeout, poll time.Duration) ([]byte, *net.UDPAddr, error) {
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, nil, ErrTimeout
		}
		if poll > 0 && wait > poll {
			wait = poll
		}

		data, from, err := e.Receive(wait)
		if errors.Is(err, ErrTimeout) {
			continue
		}
		return data, from, err
	}
}

// drainWait bounds each read in Drain. It only has to cover datagrams that
// are already in the socket buffer.
const drainWait = time.Millisecond

// Drain discards every datagram already waiting on the endpoint and returns
// how many were dropped.
func (e *Endpoint) Drain() int {
	n := 0
	for {
		if _, _, err := e.Receive(drainWait); err != nil {
			return n
		}
		n++
	}
}

func (e *Endpoint) receiveError(err error) error {
	if errors.Is(err, net.ErrClosed) {
		err = ErrClosed
	}
	return &Error{Op: OpReceive, Addr: e.conn.LocalAddr().String(), Err: err}
}

// Close releases the socket. It is safe to call more than once.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.conn.Close()
	})
	return e.closeErr
}
