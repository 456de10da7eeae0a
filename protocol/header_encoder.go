package protocol

import (
	"encoding/binary"
)

// HeaderEncode serializes the header into a new byte slice.
func HeaderEncode(h *SocketHeader) ([]byte, error) {
	if h == nil {
		return nil, ErrNilHeader
	}
	return appendHeader(make([]byte, 0, h.HeaderSize()), h), nil
}

// appendHeader appends the encoded header to buf.
func appendHeader(buf []byte, h *SocketHeader) []byte {
	// Set timestamp
	h.SetTimestampIfZero()

	// Write fixed fields in same order as decoder
	buf = append(buf, h.ID[:]...)
	buf = append(buf, h.Sender[:]...)
	buf = binary.BigEndian.AppendUint64(buf, h.Timestamp)
	buf = binary.BigEndian.AppendUint64(buf, h.Length)

	// Control bytes
	buf = append(buf, byte(h.Flags), byte(h.MessageType), h.Router, byte(h.Protocol))

	// Optional fields
	if h.Protocol == ProtocolUDP {
		buf = binary.BigEndian.AppendUint32(buf, h.Sequence)
	}
	return buf
}
