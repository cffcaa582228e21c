package protocol_test

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/tftprelay/internal/protocol"
)

// TestEncodeDecodeRoundTrip verifies that DecodeRequest recovers exactly what
// EncodeRequest was given.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name     string
		filename string
		mode     string
		isRead   bool
	}{
		{"write netascii", "test.txt", "netascii", false},
		{"read octet", "test.txt", "octet", true},
		{"empty filename", "", "netascii", true},
		{"empty mode", "a.bin", "", false},
		{"both empty", "", "", true},
		{"spaces and punctuation", "my file (1).txt", "net ascii", false},
		{"unicode filename", "資料.txt", "octet", true},
		{"long filename", strings.Repeat("x", 900), "octet", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := protocol.EncodeRequest(tc.filename, tc.mode, tc.isRead)
			require.NoError(t, err)

			req, err := protocol.DecodeRequest(encoded)
			require.NoError(t, err)

			assert.Equal(t, tc.isRead, req.IsRead)
			assert.Equal(t, tc.filename, req.Filename)
			assert.Equal(t, tc.mode, req.Mode)
		})
	}
}

func TestEncodeRequestLayout(t *testing.T) {
	got, err := protocol.EncodeRequest("test.txt", "netascii", false)
	require.NoError(t, err)

	want := append([]byte{0, 2}, []byte("test.txt\x00netascii\x00")...)
	assert.Equal(t, want, got)

	got, err = protocol.EncodeRequest("f", "m", true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 'f', 0, 'm', 0}, got)
}

// TestEncodeRequestRejects verifies that precondition violations are refused
// instead of producing a truncated or ambiguous packet.
func TestEncodeRequestRejects(t *testing.T) {
	testCases := []struct {
		name     string
		filename string
		mode     string
		want     error
	}{
		{"NUL in filename", "a\x00b", "octet", protocol.ErrEmbeddedNUL},
		{"NUL in mode", "a", "oc\x00tet", protocol.ErrEmbeddedNUL},
		{"control character", "a\tb", "octet", protocol.ErrNotPrintable},
		{"invalid utf8", "a\xffb", "octet", protocol.ErrNotPrintable},
		{"too large", strings.Repeat("x", protocol.MaxPacketSize), "octet", protocol.ErrPacketTooLarge},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := protocol.EncodeRequest(tc.filename, tc.mode, true)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEncodeDataOrAck(t *testing.T) {
	assert.Equal(t, []byte{0, 3, 0, 1, 'd', 'a', 't', 'a'}, protocol.EncodeDataOrAck(true, []byte("data")))
	assert.Equal(t, []byte{0, 3, 0, 1}, protocol.EncodeDataOrAck(true, nil))
	assert.Equal(t, []byte{0, 4, 0, 0}, protocol.EncodeDataOrAck(false, []byte("ack")))
	assert.Equal(t, []byte{0, 4, 0, 0}, protocol.EncodeAck())
	assert.Equal(t, []byte{0, 5, 'i', 'n', 'v', 'a', 'l', 'i', 'd'}, protocol.InvalidRequest())
}

// TestEncodeDataCopiesPayload verifies that the Data packet does not alias
// the caller's payload.
func TestEncodeDataCopiesPayload(t *testing.T) {
	payload := []byte("data")
	pkt := protocol.EncodeData(payload)
	payload[0] = 'X'
	assert.Equal(t, []byte{0, 3, 0, 1, 'd', 'a', 't', 'a'}, pkt)
}

func TestDecodeRequestInvalid(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"3 bytes", []byte{0, 1, 0}},
		{"reserved byte set", []byte{1, 1, 'a', 0, 'b', 0}},
		{"data opcode", []byte{0, 3, 'a', 0, 'b', 0}},
		{"error opcode", protocol.InvalidRequest()},
		{"no-data sentinel", protocol.NoData()},
		{"no terminator", []byte{0, 1, 'a', 'b', 'c', 'd'}},
		{"mode not terminated", []byte{0, 2, 'a', 0, 'b'}},
		{"trailing byte", []byte{0, 1, 'a', 0, 'b', 0, 'x'}},
		{"third NUL", []byte{0, 1, 'a', 0, 'b', 0, 0}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := protocol.DecodeRequest(tc.data)
			require.ErrorIs(t, err, protocol.ErrInvalidPacket)
		})
	}
}

func TestDecodeRequestMinimal(t *testing.T) {
	req, err := protocol.DecodeRequest([]byte{0, 1, 0, 0})
	require.NoError(t, err)
	assert.True(t, req.IsRead)
	assert.Empty(t, req.Filename)
	assert.Empty(t, req.Mode)

	req, err = protocol.DecodeRequest([]byte{0, 2, 'a', 0, 0})
	require.NoError(t, err)
	assert.False(t, req.IsRead)
	assert.Equal(t, "a", req.Filename)
	assert.Empty(t, req.Mode)
}

// TestDecodeRequestMatchesStructuralRule checks DecodeRequest against the
// structural rule on many random packets: at least 4 bytes, reserved byte 0,
// opcode 1 or 2, and exactly two NULs after the header with the last byte
// being one of them.
func TestDecodeRequestMatchesStructuralRule(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	alphabet := []byte{0, 1, 2, 3, 'a'}

	for i := 0; i < 20000; i++ {
		b := make([]byte, rng.Intn(9))
		for j := range b {
			b[j] = alphabet[rng.Intn(len(alphabet))]
		}

		want := len(b) >= 4 &&
			b[0] == 0 &&
			(b[1] == 1 || b[1] == 2) &&
			bytes.Count(b[2:], []byte{0}) == 2 &&
			b[len(b)-1] == 0

		_, err := protocol.DecodeRequest(b)
		if got := err == nil; got != want {
			t.Fatalf("DecodeRequest(%v): valid=%v, want %v (err=%v)", b, got, want, err)
		}
	}
}

func TestClassify(t *testing.T) {
	read, _ := protocol.EncodeRequest("f", "m", true)
	write, _ := protocol.EncodeRequest("f", "m", false)

	testCases := []struct {
		name string
		data []byte
		want protocol.Kind
	}{
		{"read", read, protocol.KindReadRequest},
		{"write", write, protocol.KindWriteRequest},
		{"data", protocol.EncodeData([]byte("data")), protocol.KindData},
		{"ack", protocol.EncodeAck(), protocol.KindAck},
		{"error", protocol.InvalidRequest(), protocol.KindError},
		{"pull", protocol.Pull(), protocol.KindPull},
		{"no data", protocol.NoData(), protocol.KindNoData},
		{"empty", nil, protocol.KindUnknown},
		{"reserved byte set", []byte{1, 4, 0, 0}, protocol.KindUnknown},
		{"short ack", []byte{0, 4, 0}, protocol.KindUnknown},
		{"unknown opcode", []byte{0, 7}, protocol.KindUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, protocol.Classify(tc.data))
		})
	}
}

func TestIsNoData(t *testing.T) {
	assert.True(t, protocol.IsNoData([]byte{0, 0}))
	assert.False(t, protocol.IsNoData([]byte{0, 0, 0}))
	assert.False(t, protocol.IsNoData(protocol.Pull()))
}

func TestRender(t *testing.T) {
	out := protocol.Render(protocol.InvalidRequest())
	assert.Contains(t, out, "ERROR")
	assert.Contains(t, out, "bytes=[0 5 105 110 118 97 108 105 100]")
	assert.Contains(t, out, `[0][5]invalid`)

	write, err := protocol.EncodeRequest("test.txt", "netascii", false)
	require.NoError(t, err)
	out = protocol.Render(write)
	assert.Contains(t, out, "WRQ")
	assert.Contains(t, out, `[0][2]test.txt[0]netascii[0]`)
}
