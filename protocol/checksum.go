// Package protocol provides CRC-32 utilities for chunkhub frame integrity verification.
// The trailer covers header and payload; the two halves are hashed independently
// and joined with checksum.Combine.
package protocol

import (
	"github.com/Jdcabreradev/chunkhub/checksum"
)

// Checksum calculates the CRC-32 of payload.
func Checksum(payload []byte) uint32 {
	return checksum.Checksum(payload)
}

// FrameChecksum calculates the CRC-32 of headerBytes followed by payload.
func FrameChecksum(headerBytes, payload []byte) uint32 {
	header := checksum.New()
	header.Append(headerBytes)

	body := checksum.New()
	body.Append(payload)

	header.Combine(body)
	return header.Checksum()
}
