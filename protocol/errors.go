package protocol

import "github.com/cockroachdb/errors"

var (
	ErrNilHeader          = errors.New("protohub: header is nil")
	ErrInvalidHeader      = errors.New("protohub: invalid header")
	ErrChecksumMismatch   = errors.New("protohub: checksum mismatch")
	ErrMessageTooLarge    = errors.New("protohub: message too large")
	ErrFrameTooShort      = errors.New("protohub: frame too short")
	ErrInvalidCompression = errors.New("protohub: invalid compressed payload")
)
