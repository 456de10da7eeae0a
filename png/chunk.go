// Package png builds and reads the chunked PNG container: an 8-byte signature
// followed by length-prefixed chunks, each closed by a CRC-32 over its type
// tag and payload.
package png

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/Jdcabreradev/chunkhub/checksum"
	"github.com/cockroachdb/errors"
)

// Signature opens every PNG stream.
var Signature = []byte("\x89PNG\r\n\x1a\n")

// Chunk types written by Encode.
const (
	TypeIHDR = "IHDR"
	TypeIDAT = "IDAT"
	TypeIEND = "IEND"
)

// MaxChunkSize bounds the payload length ReadChunk will allocate for.
const MaxChunkSize = 16 << 20

// Chunk is one length-prefixed record of a PNG stream.
type Chunk struct {
	Type string
	Data []byte
}

// Checksum returns the CRC-32 stored after the chunk on the wire.
func (c Chunk) Checksum() uint32 {
	return ChunkChecksum([]byte(c.Type), c.Data)
}

// ChunkChecksum returns the CRC-32 of chunkType followed by data. The tag is
// hashed on its own and its checksum seeds the payload's stream.
func ChunkChecksum(chunkType, data []byte) uint32 {
	s := checksum.New()
	s.Seed(checksum.Checksum(chunkType))
	s.Append(data)
	return s.Checksum()
}

// WriteChunk writes length, type, data and CRC-32 to w.
func WriteChunk(w io.Writer, chunkType string, data []byte) error {
	if !validType(chunkType) {
		return errors.Wrapf(ErrInvalidChunkType, "png: %q", chunkType)
	}
	if len(data) > MaxChunkSize {
		return errors.Wrapf(ErrChunkTooLarge, "png: chunk %s: %d bytes", chunkType, len(data))
	}

	var head [8]byte
	binary.BigEndian.PutUint32(head[:4], uint32(len(data)))
	copy(head[4:], chunkType)

	var tail [4]byte
	binary.BigEndian.PutUint32(tail[:], ChunkChecksum(head[4:], data))

	for _, b := range [][]byte{head[:], data, tail[:]} {
		if _, err := w.Write(b); err != nil {
			return errors.Wrapf(err, "png: write chunk %s", chunkType)
		}
	}
	return nil
}

// ReadChunk reads one chunk from r and verifies its CRC-32. It returns io.EOF
// only when r is exhausted before the first byte of the chunk.
func ReadChunk(r io.Reader) (Chunk, error) {
	var head [8]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		if err == io.EOF {
			return Chunk{}, io.EOF
		}
		return Chunk{}, errors.Wrap(ErrTruncated, "png: chunk header")
	}

	length := binary.BigEndian.Uint32(head[:4])
	chunkType := string(head[4:])
	if !validType(chunkType) {
		return Chunk{}, errors.Wrapf(ErrInvalidChunkType, "png: %q", chunkType)
	}
	if length > MaxChunkSize {
		return Chunk{}, errors.Wrapf(ErrChunkTooLarge, "png: chunk %s: %d bytes", chunkType, length)
	}

	// The CRC covers the type tag as well, so replay it ahead of the payload.
	cr := checksum.NewReader(io.MultiReader(bytes.NewReader(head[4:]), r))
	body := make([]byte, 4+int(length))
	if _, err := io.ReadFull(cr, body); err != nil {
		return Chunk{}, errors.Wrapf(ErrTruncated, "png: chunk %s payload", chunkType)
	}

	var tail [4]byte
	if _, err := io.ReadFull(r, tail[:]); err != nil {
		return Chunk{}, errors.Wrapf(ErrTruncated, "png: chunk %s crc", chunkType)
	}
	if err := cr.Verify(binary.BigEndian.Uint32(tail[:])); err != nil {
		return Chunk{}, errors.Wrapf(err, "png: chunk %s", chunkType)
	}

	return Chunk{Type: chunkType, Data: body[4:]}, nil
}

// Decode reads a whole PNG stream up to and including IEND.
func Decode(r io.Reader) ([]Chunk, error) {
	sig := make([]byte, len(Signature))
	if _, err := io.ReadFull(r, sig); err != nil || !bytes.Equal(sig, Signature) {
		return nil, ErrBadSignature
	}

	var chunks []Chunk
	for {
		c, err := ReadChunk(r)
		if err == io.EOF {
			return nil, ErrMissingEnd
		}
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
		if c.Type == TypeIEND {
			return chunks, nil
		}
	}
}

func validType(t string) bool {
	if len(t) != 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		c := t[i]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}
