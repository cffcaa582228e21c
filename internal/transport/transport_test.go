package transport_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/tftprelay/internal/transport"
)

func bindLoopback(t *testing.T) *transport.Endpoint {
	t.Helper()
	ep, err := transport.BindAddr("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ep.Close() })
	return ep
}

func TestSendReceive(t *testing.T) {
	a := bindLoopback(t)
	b := bindLoopback(t)

	payload := []byte{0, 2, 't', 0, 'm', 0}
	require.NoError(t, a.SendTo(payload, b.LocalAddr()))

	got, from, err := b.Receive(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, a.LocalAddr().Port, from.Port)
}

// TestReceiveWholeDatagrams verifies that consecutive datagrams are delivered
// one per Receive and are not merged or split.
func TestReceiveWholeDatagrams(t *testing.T) {
	a := bindLoopback(t)
	b := bindLoopback(t)

	first := []byte("first datagram")
	second := make([]byte, 4000)
	for i := range second {
		second[i] = byte(i)
	}

	require.NoError(t, a.SendTo(first, b.LocalAddr()))
	require.NoError(t, a.SendTo(second, b.LocalAddr()))

	got, _, err := b.Receive(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	got, _, err = b.Receive(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

// TestReceiveReturnsCopy verifies that a later Receive does not overwrite the
// bytes returned by an earlier one.
func TestReceiveReturnsCopy(t *testing.T) {
	a := bindLoopback(t)
	b := bindLoopback(t)

	require.NoError(t, a.SendTo([]byte("aaaa"), b.LocalAddr()))
	require.NoError(t, a.SendTo([]byte("bbbb"), b.LocalAddr()))

	first, _, err := b.Receive(2 * time.Second)
	require.NoError(t, err)
	_, _, err = b.Receive(2 * time.Second)
	require.NoError(t, err)

	assert.Equal(t, []byte("aaaa"), first)
}

func TestReceiveTimeout(t *testing.T) {
	ep := bindLoopback(t)

	start := time.Now()
	_, _, err := ep.Receive(100 * time.Millisecond)
	require.ErrorIs(t, err, transport.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestBindConflict(t *testing.T) {
	ep := bindLoopback(t)

	_, err := transport.BindAddr(ep.LocalAddr().String())
	require.Error(t, err)
	assert.True(t, transport.IsBindError(err))

	var te *transport.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, transport.OpBind, te.Op)
}

func TestBindBadAddress(t *testing.T) {
	_, err := transport.BindAddr("not-an-address")
	require.Error(t, err)
	assert.True(t, transport.IsBindError(err))
}

func TestClosedEndpoint(t *testing.T) {
	ep, err := transport.BindAddr("127.0.0.1:0")
	require.NoError(t, err)
	peer := bindLoopback(t)

	require.NoError(t, ep.Close())
	require.NoError(t, ep.Close())

	err = ep.SendTo([]byte{0, 4, 0, 0}, peer.LocalAddr())
	require.ErrorIs(t, err, transport.ErrClosed)
	assert.False(t, transport.IsBindError(err))

	_, _, err = ep.Receive(50 * time.Millisecond)
	require.ErrorIs(t, err, transport.ErrClosed)
}

func TestSendToNilAddress(t *testing.T) {
	ep := bindLoopback(t)

	var te *transport.Error
	require.ErrorAs(t, ep.SendTo([]byte{0, 0}, nil), &te)
	assert.Equal(t, transport.OpSend, te.Op)
}

func TestReceiveContext(t *testing.T) {
	ep := bindLoopback(t)
	peer := bindLoopback(t)

	t.Run("delivers", func(t *testing.T) {
		go func() {
			time.Sleep(30 * time.Millisecond)
			peer.SendTo([]byte{0, 4, 0, 0}, ep.LocalAddr())
		}()
		data, from, err := ep.ReceiveContext(context.Background(), 2*time.Second, 10*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, []byte{0, 4, 0, 0}, data)
		assert.Equal(t, peer.LocalAddr().Port, from.Port)
	})

	t.Run("times out", func(t *testing.T) {
		start := time.Now()
		_, _, err := ep.ReceiveContext(context.Background(), 100*time.Millisecond, 20*time.Millisecond)
		require.ErrorIs(t, err, transport.ErrTimeout)
		assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(30 * time.Millisecond)
			cancel()
		}()
		start := time.Now()
		_, _, err := ep.ReceiveContext(ctx, 10*time.Second, 20*time.Millisecond)
		require.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}

func TestDrain(t *testing.T) {
	ep := bindLoopback(t)
	peer := bindLoopback(t)

	assert.Zero(t, ep.Drain())

	for _, b := range []byte{3, 4, 5} {
		require.NoError(t, peer.SendTo([]byte{0, b}, ep.LocalAddr()))
	}
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 3, ep.Drain())

	_, _, err := ep.Receive(50 * time.Millisecond)
	require.ErrorIs(t, err, transport.ErrTimeout)

	require.NoError(t, peer.SendTo([]byte{0, 4, 0, 0}, ep.LocalAddr()))
	data, _, err := ep.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 4, 0, 0}, data)
}
