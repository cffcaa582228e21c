package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// EncodeRequest serializes a read (isRead) or write request.
// filename and mode must be printable and free of NUL bytes; the encoded
// packet must fit in MaxPacketSize.
func EncodeRequest(filename, mode string, isRead bool) ([]byte, error) {
	if err := checkField("filename", filename); err != nil {
		return nil, err
	}
	if err := checkField("mode", mode); err != nil {
		return nil, err
	}

	size := HeaderSize + len(filename) + 1 + len(mode) + 1
	if size > MaxPacketSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPacketTooLarge, size, MaxPacketSize)
	}

	op := OpWriteRequest
	if isRead {
		op = OpReadRequest
	}

	buf := make([]byte, 0, size)
	buf = append(buf, 0, byte(op))
	buf = append(buf, filename...)
	buf = append(buf, 0)
	buf = append(buf, mode...)
	buf = append(buf, 0)
	return buf, nil
}

func checkField(name, v string) error {
	if strings.IndexByte(v, 0) >= 0 {
		return fmt.Errorf("%s: %w", name, ErrEmbeddedNUL)
	}
	if !utf8.ValidString(v) {
		return fmt.Errorf("%s: %w", name, ErrNotPrintable)
	}
	for _, r := range v {
		if !unicode.IsPrint(r) {
			return fmt.Errorf("%s: %w", name, ErrNotPrintable)
		}
	}
	return nil
}

// EncodeDataOrAck builds a Data packet (block 1, payload verbatim) when isData
// is true, otherwise an Ack packet (block 0) and payload is ignored.
func EncodeDataOrAck(isData bool, payload []byte) []byte {
	if !isData {
		buf := make([]byte, HeaderSize+2)
		buf[1] = byte(OpAck)
		binary.BigEndian.PutUint16(buf[2:4], AckBlock)
		return buf
	}

	buf := make([]byte, HeaderSize+2+len(payload))
	buf[1] = byte(OpData)
	binary.BigEndian.PutUint16(buf[2:4], DataBlock)
	copy(buf[4:], payload)
	return buf
}

// EncodeData builds a Data packet carrying payload.
func EncodeData(payload []byte) []byte { return EncodeDataOrAck(true, payload) }

// EncodeAck builds the fixed Ack packet [0 4 0 0].
func EncodeAck() []byte { return EncodeDataOrAck(false, nil) }

// EncodeError builds an Error packet with msg as the diagnostic bytes.
func EncodeError(msg string) []byte {
	buf := make([]byte, HeaderSize+len(msg))
	buf[1] = byte(OpError)
	copy(buf[HeaderSize:], msg)
	return buf
}

// InvalidRequest returns the deliberately malformed packet [0 5 "invalid"].
func InvalidRequest() []byte { return EncodeError(InvalidMessage) }

// Pull returns the responder's request for queued originator data.
func Pull() []byte { return []byte{0, byte(opPull)} }

// NoData returns the relay's "nothing queued" sentinel.
func NoData() []byte { return []byte{0, byte(opNoData)} }

// IsNoData reports whether b is exactly the no-data sentinel.
func IsNoData(b []byte) bool { return len(b) == 2 && b[0] == 0 && b[1] == byte(opNoData) }

// DecodeRequest validates b as a read/write request and extracts its fields.
// Every failure wraps ErrInvalidPacket.
func DecodeRequest(b []byte) (Request, error) {
	if len(b) < 4 {
		return Request{}, fmt.Errorf("%w: too short (%d bytes)", ErrInvalidPacket, len(b))
	}
	if b[0] != 0 {
		return Request{}, fmt.Errorf("%w: reserved byte is %d", ErrInvalidPacket, b[0])
	}
	op := Opcode(b[1])
	if op != OpReadRequest && op != OpWriteRequest {
		return Request{}, fmt.Errorf("%w: opcode %d is not a request", ErrInvalidPacket, op)
	}

	body := b[HeaderSize:]
	first := bytes.IndexByte(body, 0)
	if first < 0 {
		return Request{}, fmt.Errorf("%w: filename not terminated", ErrInvalidPacket)
	}
	second := bytes.IndexByte(body[first+1:], 0)
	if second < 0 {
		return Request{}, fmt.Errorf("%w: mode not terminated", ErrInvalidPacket)
	}
	second += first + 1
	if second != len(body)-1 {
		return Request{}, fmt.Errorf("%w: %d trailing bytes after mode", ErrInvalidPacket, len(body)-1-second)
	}

	return Request{
		IsRead:   op == OpReadRequest,
		Filename: string(body[:first]),
		Mode:     string(body[first+1 : second]),
	}, nil
}

// Classify returns the Kind of b from its header alone. Requests are not
// structurally validated here; use DecodeRequest for that.
func Classify(b []byte) Kind {
	if len(b) < HeaderSize || b[0] != 0 {
		return KindUnknown
	}
	switch Opcode(b[1]) {
	case OpReadRequest:
		return KindReadRequest
	case OpWriteRequest:
		return KindWriteRequest
	case OpData:
		if len(b) >= 4 {
			return KindData
		}
	case OpAck:
		if len(b) == 4 {
			return KindAck
		}
	case OpError:
		return KindError
	case opPull:
		if len(b) == 2 {
			return KindPull
		}
	case opNoData:
		if len(b) == 2 {
			return KindNoData
		}
	}
	return KindUnknown
}

// Render formats b for diagnostics: kind, raw bytes, and text with
// non-printable bytes shown as [n].
func Render(b []byte) string {
	var raw, text strings.Builder
	for i, c := range b {
		if i > 0 {
			raw.WriteByte(' ')
		}
		raw.WriteString(strconv.Itoa(int(c)))

		if c < utf8.RuneSelf && strconv.IsPrint(rune(c)) {
			text.WriteByte(c)
		} else {
			text.WriteByte('[')
			text.WriteString(strconv.Itoa(int(c)))
			text.WriteByte(']')
		}
	}
	return fmt.Sprintf("%s (%d bytes) bytes=[%s] text=%q", Classify(b), len(b), raw.String(), text.String())
}
