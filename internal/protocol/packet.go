// Package protocol defines the packet format and types for the relay protocol.
package protocol

import "errors"

// Opcode is the second byte of every packet. The first byte is always 0.
type Opcode uint8

// Opcode constants.
const (
	OpReadRequest  Opcode = 0x01 // filename NUL mode NUL
	OpWriteRequest Opcode = 0x02 // filename NUL mode NUL
	OpData         Opcode = 0x03 // block(2) + payload
	OpAck          Opcode = 0x04 // block(2)
	OpError        Opcode = 0x05 // diagnostic bytes
)

// Control opcodes exchanged only between the relay and the responder.
const (
	opNoData Opcode = 0x00 // relay → responder: nothing queued
	opPull   Opcode = 0x09 // responder → relay: hand me the next request
)

const (
	// HeaderSize is the reserved byte plus the opcode.
	HeaderSize = 2

	// MaxPacketSize is the largest datagram the roles exchange.
	MaxPacketSize = 1024

	// DataBlock and AckBlock are the only block numbers this protocol uses.
	DataBlock uint16 = 1
	AckBlock  uint16 = 0

	// DefaultMode is the transfer mode written into every request.
	DefaultMode = "netascii"
)

// Fixed payloads.
var (
	// DataPayload is the placeholder block carried by every Data reply.
	DataPayload = []byte("data")

	// InvalidMessage is the diagnostic text of the Error packet.
	InvalidMessage = "invalid"
)

// Encode-time and decode-time errors.
var (
	ErrInvalidPacket  = errors.New("invalid packet")
	ErrEmbeddedNUL    = errors.New("field contains NUL byte")
	ErrNotPrintable   = errors.New("field contains non-printable characters")
	ErrPacketTooLarge = errors.New("packet exceeds maximum datagram size")
)

// Kind is the closed set of packet shapes a role can receive.
type Kind int

const (
	KindUnknown Kind = iota
	KindReadRequest
	KindWriteRequest
	KindData
	KindAck
	KindError
	KindPull
	KindNoData
)

func (k Kind) String() string {
	switch k {
	case KindReadRequest:
		return "RRQ"
	case KindWriteRequest:
		return "WRQ"
	case KindData:
		return "DATA"
	case KindAck:
		return "ACK"
	case KindError:
		return "ERROR"
	case KindPull:
		return "PULL"
	case KindNoData:
		return "NODATA"
	default:
		return "UNKNOWN"
	}
}

// Request is the decoded form of a read or write request.
type Request struct {
	IsRead   bool
	Filename string
	Mode     string
}
