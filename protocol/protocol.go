package protocol

import (
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/valyala/bytebufferpool"
)

// DefaultMaxMessageSize bounds payloads when no WithMaxMessageSize option is given.
const DefaultMaxMessageSize = 4 * 1024 * 1024

// Conn abstracts a framed connection (TCP or UDP) with sender metadata.
// ReadFrame returns the full SocketHeader and payload; WriteFrame accepts a SocketHeader.
//
// Frame layout: headerLen(1) | header | payload | CRC-32(4) over header and payload.
type Conn interface {
	ReadFrame() (*SocketHeader, []byte, error)
	WriteFrame(header *SocketHeader, payload []byte) error
	Close() error
	RemoteAddr() net.Addr
	LocalAddr() net.Addr
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
	SetSender(uuid.UUID)
	GetSender() uuid.UUID
}

type connOptions struct {
	compression    bool
	maxMessageSize int
}

// ConnOption configures a Conn.
type ConnOption func(*connOptions)

// WithCompression enables lz4 compression of outgoing payloads that shrink under it.
func WithCompression(enabled bool) ConnOption {
	return func(o *connOptions) {
		o.compression = enabled
	}
}

// WithMaxMessageSize sets the largest payload accepted or sent. n <= 0 keeps
// DefaultMaxMessageSize.
func WithMaxMessageSize(n int) ConnOption {
	return func(o *connOptions) {
		if n > 0 {
			o.maxMessageSize = n
		}
	}
}

func newConnOptions(opts []ConnOption) connOptions {
	o := connOptions{maxMessageSize: DefaultMaxMessageSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// encodeFrame appends the framed message to buf. It sets header.Length to the
// wire payload length and header's FlagCompressed to match the payload.
func (o *connOptions) encodeFrame(buf *bytebufferpool.ByteBuffer, header *SocketHeader, payload []byte) error {
	if len(payload) > o.maxMessageSize {
		return errors.Wrapf(ErrMessageTooLarge, "protohub: payload %d bytes exceeds %d", len(payload), o.maxMessageSize)
	}

	header.Flags = ClearFlag(header.Flags, FlagCompressed)
	if o.compression {
		if compressed, ok := compressPayload(payload); ok {
			payload = compressed
			header.Flags = SetFlag(header.Flags, FlagCompressed)
		}
	}
	header.Length = uint64(len(payload))

	start := len(buf.B)
	buf.B = append(buf.B, 0) // header size prefix, patched below
	buf.B = appendHeader(buf.B, header)
	headerBytes := buf.B[start+1:]
	buf.B[start] = uint8(len(headerBytes))

	crc := FrameChecksum(headerBytes, payload)
	buf.B = append(buf.B, payload...)
	buf.B = binary.BigEndian.AppendUint32(buf.B, crc)
	return nil
}

// decodePayload verifies the trailer and undoes compression. On return the
// header describes the payload handed to the caller.
func (o *connOptions) decodePayload(h *SocketHeader, headerBytes, payload []byte, crc uint32) ([]byte, error) {
	if FrameChecksum(headerBytes, payload) != crc {
		return nil, ErrChecksumMismatch
	}
	if HasFlag(h.Flags, FlagCompressed) {
		raw, err := decompressPayload(payload, o.maxMessageSize)
		if err != nil {
			return nil, err
		}
		payload = raw
		h.Flags = ClearFlag(h.Flags, FlagCompressed)
		h.Length = uint64(len(raw))
	}
	return payload, nil
}

// tcpConnWrapper wraps a net.Conn for framed I/O using protohub protocol.
type tcpConnWrapper struct {
	conn   net.Conn
	sender uuid.UUID
	opts   connOptions
}

// NewTCPConnWrapper constructs a Conn from a net.Conn.
func NewTCPConnWrapper(c net.Conn, opts ...ConnOption) Conn {
	return &tcpConnWrapper{
		conn:   c,
		sender: uuid.New(), // default sender ID
		opts:   newConnOptions(opts),
	}
}

// ReadFrame reads a full frame (header + payload + trailer) from TCP.
func (t *tcpConnWrapper) ReadFrame() (*SocketHeader, []byte, error) {
	// Read the header size prefix to determine how much to read.
	var prefix [1]byte
	if _, err := io.ReadFull(t.conn, prefix[:]); err != nil {
		return nil, nil, errors.Wrap(err, "TCP: failed to read header size prefix")
	}

	headerBytes := make([]byte, prefix[0])
	if _, err := io.ReadFull(t.conn, headerBytes); err != nil {
		return nil, nil, errors.Wrap(err, "TCP: failed to read header")
	}
	h, err := HeaderDecode(headerBytes)
	if err != nil {
		return nil, nil, errors.Wrap(err, "TCP: decode header error")
	}
	if h.Length > uint64(t.opts.maxMessageSize) {
		return nil, nil, errors.Wrapf(ErrMessageTooLarge, "TCP: payload %d bytes exceeds %d", h.Length, t.opts.maxMessageSize)
	}

	// Payload followed by its trailer
	body := make([]byte, h.Length+TrailerSize)
	if _, err := io.ReadFull(t.conn, body); err != nil {
		return nil, nil, errors.Wrap(err, "TCP: failed to read payload")
	}
	payload := body[:h.Length]
	crc := binary.BigEndian.Uint32(body[h.Length:])

	payload, err = t.opts.decodePayload(h, headerBytes, payload, crc)
	if err != nil {
		return nil, nil, errors.Wrap(err, "TCP")
	}
	return h, payload, nil
}

// WriteFrame encodes the provided SocketHeader and payload, then writes to TCP.
func (t *tcpConnWrapper) WriteFrame(header *SocketHeader, payload []byte) error {
	if header == nil {
		return errors.Wrap(ErrNilHeader, "TCP")
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := t.opts.encodeFrame(buf, header, payload); err != nil {
		return errors.Wrap(err, "TCP: encode frame")
	}
	if _, err := t.conn.Write(buf.B); err != nil {
		return errors.Wrap(err, "TCP: write error")
	}
	return nil
}

func (t *tcpConnWrapper) Close() error {
	return t.conn.Close()
}

func (t *tcpConnWrapper) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

func (t *tcpConnWrapper) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

func (t *tcpConnWrapper) SetReadDeadline(tm time.Time) error {
	return t.conn.SetReadDeadline(tm)
}

func (t *tcpConnWrapper) SetWriteDeadline(tm time.Time) error {
	return t.conn.SetWriteDeadline(tm)
}

func (t *tcpConnWrapper) SetSender(id uuid.UUID) {
	t.sender = id
}

func (t *tcpConnWrapper) GetSender() uuid.UUID {
	return t.sender
}

// udpConnWrapper wraps a net.PacketConn + remote address for framed I/O via protohub.
type udpConnWrapper struct {
	pc          net.PacketConn
	addr        net.Addr
	datagramMax int
	sender      uuid.UUID
	sequence    uint32
	opts        connOptions
}

// NewUDPConnWrapper constructs a Conn from a PacketConn and remote Addr.
// maxSize bounds a whole datagram; ReadFrame records the address of the last
// datagram so WriteFrame replies to it.
func NewUDPConnWrapper(pc net.PacketConn, addr net.Addr, maxSize int, opts ...ConnOption) Conn {
	return &udpConnWrapper{
		pc:          pc,
		addr:        addr,
		datagramMax: maxSize,
		sender:      uuid.New(),
		sequence:    0,
		opts:        newConnOptions(opts),
	}
}

// ReadFrame reads a full UDP datagram, decodes via protohub, and returns header + payload.
func (u *udpConnWrapper) ReadFrame() (*SocketHeader, []byte, error) {
	buf := make([]byte, u.datagramMax)
	n, addr, err := u.pc.ReadFrom(buf)
	if err != nil {
		return nil, nil, errors.Wrap(err, "UDP: read error")
	}
	u.addr = addr
	buf = buf[:n]

	if len(buf) < 1 {
		return nil, nil, errors.Wrap(ErrFrameTooShort, "UDP: missing header size prefix")
	}
	headerSize := int(buf[0])
	if len(buf) < 1+headerSize {
		return nil, nil, errors.Wrap(ErrFrameTooShort, "UDP: packet too small for header")
	}

	headerBytes := buf[1 : 1+headerSize]
	h, err := HeaderDecode(headerBytes)
	if err != nil {
		return nil, nil, errors.Wrap(err, "UDP: decode header error")
	}

	if h.Length > uint64(u.opts.maxMessageSize) {
		return nil, nil, errors.Wrapf(ErrMessageTooLarge, "UDP: payload %d bytes exceeds %d", h.Length, u.opts.maxMessageSize)
	}
	payloadStart := 1 + headerSize
	if remaining := len(buf) - payloadStart - TrailerSize; remaining < 0 || h.Length != uint64(remaining) {
		return nil, nil, errors.Wrapf(ErrFrameTooShort, "UDP: datagram is %d bytes, header announces %d payload bytes",
			len(buf), h.Length)
	}
	payloadEnd := payloadStart + int(h.Length)
	payload := append([]byte(nil), buf[payloadStart:payloadEnd]...)
	crc := binary.BigEndian.Uint32(buf[payloadEnd:])

	payload, err = u.opts.decodePayload(h, headerBytes, payload, crc)
	if err != nil {
		return nil, nil, errors.Wrap(err, "UDP")
	}
	return h, payload, nil
}

// WriteFrame encodes the provided SocketHeader and payload, then sends as a UDP packet.
func (u *udpConnWrapper) WriteFrame(header *SocketHeader, payload []byte) error {
	if header == nil {
		return errors.Wrap(ErrNilHeader, "UDP")
	}

	// Set UDP-specific fields
	header.Sender = u.sender
	header.Protocol = ProtocolUDP
	header.Sequence = u.sequence

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := u.opts.encodeFrame(buf, header, payload); err != nil {
		return errors.Wrap(err, "UDP: encode frame")
	}
	if buf.Len() > u.datagramMax {
		return errors.Wrapf(ErrMessageTooLarge, "UDP: message size %d exceeds maximum %d", buf.Len(), u.datagramMax)
	}

	if _, err := u.pc.WriteTo(buf.B, u.addr); err != nil {
		return errors.Wrap(err, "UDP: write error")
	}
	u.sequence++
	return nil
}

func (u *udpConnWrapper) Close() error {
	return nil // owner closes underlying PacketConn
}

func (u *udpConnWrapper) RemoteAddr() net.Addr {
	return u.addr
}

func (u *udpConnWrapper) LocalAddr() net.Addr {
	return u.pc.LocalAddr()
}

func (u *udpConnWrapper) SetReadDeadline(tm time.Time) error {
	return u.pc.SetReadDeadline(tm)
}

func (u *udpConnWrapper) SetWriteDeadline(tm time.Time) error {
	return u.pc.SetWriteDeadline(tm)
}

func (u *udpConnWrapper) SetSender(id uuid.UUID) {
	u.sender = id
}

func (u *udpConnWrapper) GetSender() uuid.UUID {
	return u.sender
}
