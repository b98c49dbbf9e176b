package utils

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// NewCallID returns a random non-zero 64-bit call identifier.
// The initiator of a call generates it and both sides carry it on
// every signaling message for that call.
func NewCallID() uint64 {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			// Fallback to timestamp if crypto/rand is unavailable.
			return uint64(time.Now().UnixNano())
		}
		if id := binary.BigEndian.Uint64(buf[:]); id != 0 {
			return id
		}
	}
}
