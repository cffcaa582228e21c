// Package util provides shared utility functions.
package util

import (
	"hash/fnv"
	"net"
)

// AddrTag computes a 4-byte hash of a peer address for compact log prefixes
// such as "[1a2b3c4d]". A nil address hashes to 0.
func AddrTag(addr net.Addr) uint32 {
	if addr == nil {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(addr.Network()))
	h.Write([]byte(addr.String()))
	return h.Sum32()
}
