package protocol

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// HeaderDecode parses an encoded header (without its size prefix) and
// reconstructs a SocketHeader.
func HeaderDecode(data []byte) (*SocketHeader, error) {
	headerSize := len(data)
	offset := 0

	if headerSize < MinHeaderSize || headerSize > MaxHeaderSize {
		return nil, errors.Wrapf(ErrInvalidHeader, "protohub: got %d bytes, min %d, max %d",
			headerSize, MinHeaderSize, MaxHeaderSize)
	}
	h := &SocketHeader{}

	// Read fixed fields
	copy(h.ID[:], data[offset:offset+16])
	offset += 16

	copy(h.Sender[:], data[offset:offset+16])
	offset += 16

	h.Timestamp = binary.BigEndian.Uint64(data[offset : offset+8])
	offset += 8

	h.Length = binary.BigEndian.Uint64(data[offset : offset+8])
	offset += 8

	// Control bytes
	h.Flags = Flag(data[offset])
	h.MessageType = MessageType(data[offset+1])
	h.Router = data[offset+2]
	h.Protocol = ProtocolType(data[offset+3])
	offset += 4

	if !h.Flags.IsValid() || !h.MessageType.IsValid() || !h.Protocol.IsValid() {
		return nil, errors.Wrapf(ErrInvalidHeader, "protohub: flags %#x, message type %d, protocol %d",
			uint8(h.Flags), uint8(h.MessageType), uint8(h.Protocol))
	}

	// Optional fields
	if h.Protocol == ProtocolUDP {
		if offset+4 > headerSize {
			return nil, errors.Wrap(ErrInvalidHeader, "protohub: UDP header without sequence")
		}
		h.Sequence = binary.BigEndian.Uint32(data[offset : offset+4])
		offset += 4
	}

	if offset != headerSize {
		return nil, errors.Wrapf(ErrInvalidHeader, "protohub: size mismatch (decoded %d, got %d)",
			offset, headerSize)
	}
	return h, nil
}
