package protocol

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/pierrec/lz4/v4"
)

// minCompressSize is the smallest payload worth running through lz4.
const minCompressSize = 256

// compressPayload returns the lz4 block of src prefixed with its raw length,
// and false when compression would not make the payload smaller.
func compressPayload(src []byte) ([]byte, bool) {
	if len(src) < minCompressSize {
		return nil, false
	}

	dst := make([]byte, 4+lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, dst[4:], nil)
	if err != nil || n == 0 || 4+n >= len(src) {
		// n == 0 means the block is incompressible
		return nil, false
	}
	binary.BigEndian.PutUint32(dst[:4], uint32(len(src)))
	return dst[:4+n], true
}

// decompressPayload reverses compressPayload, refusing raw sizes above limit
// when limit is positive.
func decompressPayload(src []byte, limit int) ([]byte, error) {
	if len(src) < 4 {
		return nil, errors.Wrap(ErrInvalidCompression, "protohub: missing raw length")
	}
	rawLen := binary.BigEndian.Uint32(src[:4])
	if limit > 0 && uint64(rawLen) > uint64(limit) {
		return nil, errors.Wrapf(ErrMessageTooLarge, "protohub: decompressed size %d exceeds %d", rawLen, limit)
	}

	dst := make([]byte, rawLen)
	n, err := lz4.UncompressBlock(src[4:], dst)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidCompression, "protohub: %v", err)
	}
	if n != int(rawLen) {
		return nil, errors.Wrapf(ErrInvalidCompression, "protohub: decompressed %d bytes, header says %d", n, rawLen)
	}
	return dst, nil
}
