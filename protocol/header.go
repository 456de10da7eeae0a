// Package protocol provides socket header structures for the chunkhub protocol.
// Defines the core SocketHeader struct (52 or 56 bytes encoded) for request routing and integrity.
package protocol

import (
	"time"

	"github.com/google/uuid"
)

type SocketHeader struct {
	ID          uuid.UUID    // Unique identifier for the message; responses reuse the request's ID
	Sender      uuid.UUID    // ID of the sender
	Timestamp   uint64       // Unix timestamp in milliseconds when the message was sent
	Length      uint64       // Length of the payload on the wire in bytes
	Sequence    uint32       // Monotonically increasing sequence number for ordering (UDP Only)
	Protocol    ProtocolType // Protocol type (e.g., TCP, UDP)
	Flags       Flag         // Flags for the message (e.g., ACK, Error, Compressed)
	MessageType MessageType  // Type of message (e.g., Request, Response, Heartbeat)
	Router      uint8        // Opaque routing byte, echoed back in responses
}

// SetTimestampIfZero sets the Timestamp to “now” (in ms) if it is still zero.
func (h *SocketHeader) SetTimestampIfZero() {
	if h.Timestamp == 0 {
		h.Timestamp = uint64(time.Now().UnixMilli())
	}
}

// HeaderSize returns the serialized length of the header (excluding payload).
// It includes Sequence when Protocol == ProtocolUDP.
func (h *SocketHeader) HeaderSize() int {
	size := MinHeaderSize
	if h.Protocol == ProtocolUDP {
		size += 4 // Sequence
	}
	return size
}
