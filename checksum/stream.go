package checksum

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
)

// Writer passes writes through to an io.Writer and checksums the bytes the
// underlying writer accepted.
type Writer struct {
	w     io.Writer
	state State
}

// NewWriter returns a Writer that forwards to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write implements io.Writer.
func (cw *Writer) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.state.Append(p[:n])
	return n, err
}

// Sum32 returns the checksum of everything written so far.
func (cw *Writer) Sum32() uint32 { return cw.state.Checksum() }

// Len returns the number of bytes written so far.
func (cw *Writer) Len() uint64 { return cw.state.Len() }

// Reset clears the running checksum without touching the underlying writer.
func (cw *Writer) Reset() { cw.state.Reset() }

// Reader checksums bytes as they are read from an io.Reader.
type Reader struct {
	r     io.Reader
	state State
}

// NewReader returns a Reader that reads from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Read implements io.Reader.
func (cr *Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.state.Append(p[:n])
	}
	return n, err
}

// Sum32 returns the checksum of everything read so far.
func (cr *Reader) Sum32() uint32 { return cr.state.Checksum() }

// Len returns the number of bytes read so far.
func (cr *Reader) Len() uint64 { return cr.state.Len() }

// Reset clears the running checksum without touching the underlying reader.
func (cr *Reader) Reset() { cr.state.Reset() }

// Verify reports a *MismatchError if the bytes read so far do not hash to
// expected.
func (cr *Reader) Verify(expected uint32) error {
	if actual := cr.Sum32(); actual != expected {
		return &MismatchError{Expected: expected, Actual: actual}
	}
	return nil
}

// MismatchError is returned when a computed checksum differs from the stored
// one.
type MismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected 0x%08x, got 0x%08x", e.Expected, e.Actual)
}

// IsMismatch reports whether err, or any error it wraps, is a *MismatchError.
func IsMismatch(err error) bool {
	var m *MismatchError
	return errors.As(err, &m)
}
