package png

import (
	"encoding/binary"
	"image/color"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zlib"
	"github.com/valyala/bytebufferpool"
)

const (
	DefaultWidth  uint32 = 10
	DefaultHeight uint32 = 10

	// MaxDimension is the largest width or height Encode accepts.
	MaxDimension uint32 = 4096

	bitDepth      = 8
	colorTypeRGBA = 6
	bytesPerPixel = 4
)

// Options describes a solid-colour image.
type Options struct {
	Width  uint32
	Height uint32
	Color  color.RGBA
	// Level is the zlib compression level; zero selects zlib.DefaultCompression.
	Level int
}

// Header is the decoded IHDR payload.
type Header struct {
	Width       uint32
	Height      uint32
	BitDepth    uint8
	ColorType   uint8
	Compression uint8
	Filter      uint8
	Interlace   uint8
}

// Generate returns a DefaultWidth x DefaultHeight PNG filled with c.
func Generate(c color.RGBA) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := Encode(buf, Options{Width: DefaultWidth, Height: DefaultHeight, Color: c}); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.B...), nil
}

// Encode writes a solid-colour RGBA PNG to w.
func Encode(w io.Writer, opts Options) error {
	if opts.Width == 0 || opts.Height == 0 || opts.Width > MaxDimension || opts.Height > MaxDimension {
		return errors.Wrapf(ErrInvalidDimensions, "png: %dx%d", opts.Width, opts.Height)
	}

	if _, err := w.Write(Signature); err != nil {
		return errors.Wrap(err, "png: write signature")
	}

	hdr := Header{
		Width:     opts.Width,
		Height:    opts.Height,
		BitDepth:  bitDepth,
		ColorType: colorTypeRGBA,
	}
	if err := WriteChunk(w, TypeIHDR, hdr.marshal()); err != nil {
		return err
	}

	idat := bytebufferpool.Get()
	defer bytebufferpool.Put(idat)
	if err := deflateRows(idat, opts); err != nil {
		return err
	}
	if err := WriteChunk(w, TypeIDAT, idat.B); err != nil {
		return err
	}

	return WriteChunk(w, TypeIEND, nil)
}

// deflateRows writes the zlib stream of Height identical scanlines, each a
// zero filter byte followed by Width pixels.
func deflateRows(w io.Writer, opts Options) error {
	level := opts.Level
	if level == 0 {
		level = zlib.DefaultCompression
	}
	zw, err := zlib.NewWriterLevel(w, level)
	if err != nil {
		return errors.Wrap(err, "png: zlib writer")
	}

	row := make([]byte, 1+int(opts.Width)*bytesPerPixel)
	for px := 1; px < len(row); px += bytesPerPixel {
		row[px] = opts.Color.R
		row[px+1] = opts.Color.G
		row[px+2] = opts.Color.B
		row[px+3] = opts.Color.A
	}
	for y := uint32(0); y < opts.Height; y++ {
		if _, err := zw.Write(row); err != nil {
			return errors.Wrap(err, "png: deflate scanline")
		}
	}
	return errors.Wrap(zw.Close(), "png: close zlib stream")
}

func (h Header) marshal() []byte {
	b := make([]byte, 13)
	binary.BigEndian.PutUint32(b[0:4], h.Width)
	binary.BigEndian.PutUint32(b[4:8], h.Height)
	b[8] = h.BitDepth
	b[9] = h.ColorType
	b[10] = h.Compression
	b[11] = h.Filter
	b[12] = h.Interlace
	return b
}
