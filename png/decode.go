package png

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zlib"
)

// ParseHeader decodes an IHDR chunk.
func ParseHeader(c Chunk) (Header, error) {
	if c.Type != TypeIHDR {
		return Header{}, errors.Wrapf(ErrMissingHeader, "png: got %s", c.Type)
	}
	if len(c.Data) != 13 {
		return Header{}, errors.Wrapf(ErrTruncated, "png: IHDR is %d bytes", len(c.Data))
	}
	h := Header{
		Width:       binary.BigEndian.Uint32(c.Data[0:4]),
		Height:      binary.BigEndian.Uint32(c.Data[4:8]),
		BitDepth:    c.Data[8],
		ColorType:   c.Data[9],
		Compression: c.Data[10],
		Filter:      c.Data[11],
		Interlace:   c.Data[12],
	}
	if h.Width == 0 || h.Height == 0 || h.Width > MaxDimension || h.Height > MaxDimension {
		return Header{}, errors.Wrapf(ErrInvalidDimensions, "png: %dx%d", h.Width, h.Height)
	}
	return h, nil
}

// DecodePixels inflates the IDAT chunks of an RGBA8 image and returns its raw
// scanlines, filter bytes included.
func DecodePixels(chunks []Chunk) (Header, []byte, error) {
	if len(chunks) == 0 {
		return Header{}, nil, ErrMissingHeader
	}
	h, err := ParseHeader(chunks[0])
	if err != nil {
		return Header{}, nil, err
	}
	if h.BitDepth != bitDepth || h.ColorType != colorTypeRGBA || h.Interlace != 0 {
		return Header{}, nil, errors.Wrapf(ErrUnsupportedPixels, "png: depth %d colour type %d interlace %d",
			h.BitDepth, h.ColorType, h.Interlace)
	}

	var compressed bytes.Buffer
	for _, c := range chunks[1:] {
		if c.Type == TypeIDAT {
			compressed.Write(c.Data)
		}
	}

	zr, err := zlib.NewReader(&compressed)
	if err != nil {
		return Header{}, nil, errors.Wrap(err, "png: open zlib stream")
	}
	defer zr.Close()

	want := int64(h.Height) * (1 + int64(h.Width)*bytesPerPixel)
	raw, err := io.ReadAll(io.LimitReader(zr, want+1))
	if err != nil {
		return Header{}, nil, errors.Wrap(err, "png: inflate")
	}
	if int64(len(raw)) != want {
		return Header{}, nil, errors.Wrapf(ErrTruncated, "png: got %d pixel bytes, want %d", len(raw), want)
	}
	return h, raw, nil
}
