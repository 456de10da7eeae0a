// Package protocol provides constants and types for message encoding/decoding in the chunkhub protocol.
// Defines message types, flags, protocol version, and header sizes for frame handling.
package protocol

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// =============================================================================
// Protocol Constants
// =============================================================================

// MinHeaderSize: encoded header size without optional fields.
// ID(16) + Sender(16) + Timestamp(8) + Length(8) + Control(4)
const MinHeaderSize = 16 + 16 + 8 + 8 + 4

// MaxHeaderSize: encoded header size with every optional field (Sequence).
const MaxHeaderSize = MinHeaderSize + 4

// TrailerSize: bytes of CRC-32 closing each frame.
const TrailerSize = 4

// =============================================================================
// Message Types
// =============================================================================

// MessageType: semantic type of a message payload.
type MessageType uint8

const (
	MessageTypeUnknown   MessageType = iota // Uninitialized/default
	MessageTypeRequest                      // Client asks for a resource path
	MessageTypeResponse                     // Server answers a request
	MessageTypeHeartbeat                    // Keep-alive
)

// String returns the string representation of MessageType.
func (m MessageType) String() string {
	switch m {
	case MessageTypeUnknown:
		return "Unknown"
	case MessageTypeRequest:
		return "Request"
	case MessageTypeResponse:
		return "Response"
	case MessageTypeHeartbeat:
		return "Heartbeat"
	default:
		return "InvalidMessageType"
	}
}

// IsValid returns true if the MessageType is within valid range.
func (m MessageType) IsValid() bool {
	return m <= MessageTypeHeartbeat
}

// =============================================================================
// Message Flags
// =============================================================================

// Flag: bitmask for message attributes.
type Flag uint8

const (
	FlagACK        Flag = 1 << iota // Acknowledgment
	FlagError                       // Indicates an error in the message
	FlagCompressed                  // Indicates the payload is lz4 compressed

	FlagNone Flag = 0
	flagMask      = FlagACK | FlagError | FlagCompressed
)

// String returns the names of the set flags joined by '|'.
func (f Flag) String() string {
	if f == FlagNone {
		return "None"
	}
	if !f.IsValid() {
		return "InvalidFlag"
	}
	var names []string
	if HasFlag(f, FlagACK) {
		names = append(names, "ACK")
	}
	if HasFlag(f, FlagError) {
		names = append(names, "Error")
	}
	if HasFlag(f, FlagCompressed) {
		names = append(names, "Compressed")
	}
	return strings.Join(names, "|")
}

// IsValid returns true if only known flags are set.
func (f Flag) IsValid() bool {
	return f&^flagMask == 0
}

// HasFlag checks if a specific flag is set in a bitmask.
func HasFlag(flags, flag Flag) bool {
	return flags&flag != 0
}

// SetFlag sets a specific flag in a bitmask.
func SetFlag(flags, flag Flag) Flag {
	return flags | flag
}

// ClearFlag clears a specific flag from a bitmask.
func ClearFlag(flags, flag Flag) Flag {
	return flags &^ flag
}

// =============================================================================
// Protocol Types
// =============================================================================

// ProtocolType represents the transport protocol.
type ProtocolType uint8

const (
	ProtocolTCP ProtocolType = iota
	ProtocolUDP
)

// String returns the string representation of ProtocolType.
func (p ProtocolType) String() string {
	switch p {
	case ProtocolTCP:
		return "TCP"
	case ProtocolUDP:
		return "UDP"
	default:
		return "InvalidProtocol"
	}
}

// IsValid returns true if the ProtocolType is within valid range.
func (p ProtocolType) IsValid() bool {
	return p == ProtocolTCP || p == ProtocolUDP
}

// Network returns the net package network name.
func (p ProtocolType) Network() string {
	if p == ProtocolUDP {
		return "udp"
	}
	return "tcp"
}

// MarshalText implements encoding.TextMarshaler.
func (p ProtocolType) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, errors.Newf("protocol: invalid protocol %d", uint8(p))
	}
	return []byte(strings.ToLower(p.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, accepting "tcp" or "udp".
func (p *ProtocolType) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "tcp":
		*p = ProtocolTCP
	case "udp":
		*p = ProtocolUDP
	default:
		return errors.Newf("protocol: unknown protocol %q", text)
	}
	return nil
}
