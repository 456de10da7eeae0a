package server

import (
	"bytes"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/Jdcabreradev/chunkhub/protocol"
)

// maxDatagramSize is the receive buffer of a UDP client.
const maxDatagramSize = 64 * 1024

var (
	ErrUnexpectedReply = errors.New("server: unexpected reply")
	ErrClientClosed    = errors.New("server: client closed")
)

// Reply is a server response.
type Reply struct {
	Header *protocol.SocketHeader
	Body   []byte
}

// OK reports whether the server answered without FlagError.
func (r *Reply) OK() bool {
	return !protocol.HasFlag(r.Header.Flags, protocol.FlagError)
}

// Client issues requests over one framed connection. Calls are serialized.
type Client struct {
	mu       sync.Mutex
	conn     protocol.Conn
	closer   func() error
	protocol protocol.ProtocolType
	closed   atomic.Bool
}

// Dial connects to a chunkhub server. network is "tcp" or "udp".
func Dial(ctx context.Context, network, addr string, opts ...protocol.ConnOption) (*Client, error) {
	var p protocol.ProtocolType
	if err := p.UnmarshalText([]byte(network)); err != nil {
		return nil, err
	}

	c := &Client{protocol: p}
	switch p {
	case protocol.ProtocolUDP:
		raddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return nil, errors.Wrapf(err, "server: resolve %s", addr)
		}
		var lc net.ListenConfig
		pc, err := lc.ListenPacket(ctx, "udp", ":0")
		if err != nil {
			return nil, errors.Wrap(err, "server: open udp socket")
		}
		c.conn = protocol.NewUDPConnWrapper(pc, raddr, maxDatagramSize, opts...)
		c.closer = pc.Close
	default:
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, errors.Wrapf(err, "server: dial %s", addr)
		}
		c.conn = protocol.NewTCPConnWrapper(conn, opts...)
		c.closer = c.conn.Close
	}
	return c, nil
}

// Get requests path and returns the reply, including error replies.
func (c *Client) Get(ctx context.Context, path string) (*Reply, error) {
	return c.roundTrip(ctx, protocol.MessageTypeRequest, []byte(path))
}

// Ping sends a heartbeat and checks that it is acknowledged.
func (c *Client) Ping(ctx context.Context) error {
	token := []byte(uuid.NewString())
	reply, err := c.roundTrip(ctx, protocol.MessageTypeHeartbeat, token)
	if err != nil {
		return err
	}
	if reply.Header.MessageType != protocol.MessageTypeHeartbeat ||
		!protocol.HasFlag(reply.Header.Flags, protocol.FlagACK) ||
		!bytes.Equal(reply.Body, token) {
		return errors.Wrapf(ErrUnexpectedReply, "server: heartbeat answered with %s %s",
			reply.Header.MessageType, reply.Header.Flags)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, mt protocol.MessageType, payload []byte) (*Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline, _ := ctx.Deadline()
	_ = c.conn.SetWriteDeadline(deadline)
	_ = c.conn.SetReadDeadline(deadline)
	// Unblock pending I/O when ctx is cancelled
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	req := &protocol.SocketHeader{
		ID:          uuid.New(),
		Sender:      c.conn.GetSender(),
		MessageType: mt,
		Protocol:    c.protocol,
	}
	if err := c.conn.WriteFrame(req, payload); err != nil {
		return nil, err
	}

	for {
		h, body, err := c.conn.ReadFrame()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		// Late replies to earlier datagrams are skipped
		if h.ID != req.ID {
			if c.protocol == protocol.ProtocolUDP {
				continue
			}
			return nil, errors.Wrapf(ErrUnexpectedReply, "server: reply for %s, want %s", h.ID, req.ID)
		}
		return &Reply{Header: h, Body: body}, nil
	}
}

// Close closes the connection, failing any call in flight.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.closer()
}
