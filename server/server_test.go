package server

import (
	"bytes"
	"context"
	"image/color"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chunkhub_config "github.com/Jdcabreradev/chunkhub/config"
	socketlog "github.com/Jdcabreradev/chunkhub/logger"
	"github.com/Jdcabreradev/chunkhub/png"
	"github.com/Jdcabreradev/chunkhub/protocol"
)

func startServer(t *testing.T, mutate func(cfg *chunkhub_config.SocketConfig)) *Server {
	t.Helper()

	cfg := chunkhub_config.DefaultConfig()
	cfg.IP = "127.0.0.1"
	if mutate != nil {
		mutate(cfg)
	}

	var opt Option
	if cfg.Protocol == protocol.ProtocolUDP {
		pc, err := net.ListenPacket("udp", "127.0.0.1:0")
		require.NoError(t, err)
		opt = WithPacketConn(pc)
	} else {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		opt = WithListener(ln)
	}

	log, err := socketlog.NewLogger(t.TempDir(), socketlog.DEV)
	require.NoError(t, err)

	srv, err := New(cfg, log, opt)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errc:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after cancellation")
		}
		_ = log.Close()
	})
	return srv
}

func dial(t *testing.T, srv *Server, opts ...protocol.ConnOption) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Dial(ctx, srv.cfg.Protocol.Network(), srv.Addr().String(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func decodeImage(t *testing.T, body []byte) (png.Header, []byte) {
	t.Helper()
	chunks, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	hdr, pixels, err := png.DecodePixels(chunks)
	require.NoError(t, err)
	return hdr, pixels
}

func TestServerRoutes(t *testing.T) {
	for _, proto := range []protocol.ProtocolType{protocol.ProtocolTCP, protocol.ProtocolUDP} {
		t.Run(proto.String(), func(t *testing.T) {
			srv := startServer(t, func(cfg *chunkhub_config.SocketConfig) {
				cfg.Protocol = proto
				cfg.ImageWidth = 4
				cfg.ImageHeight = 3
			})
			client := dial(t, srv)
			ctx := testContext(t)

			reply, err := client.Get(ctx, "/")
			require.NoError(t, err)
			assert.True(t, reply.OK())
			assert.Equal(t, indexPage, reply.Body)
			assert.Equal(t, protocol.MessageTypeResponse, reply.Header.MessageType)
			assert.Equal(t, srv.ID(), reply.Header.Sender)

			reply, err = client.Get(ctx, " /hexpng/FF8000 \n")
			require.NoError(t, err)
			require.True(t, reply.OK())
			hdr, pixels := decodeImage(t, reply.Body)
			assert.Equal(t, uint32(4), hdr.Width)
			assert.Equal(t, uint32(3), hdr.Height)
			assert.Equal(t, []byte{0, 0xFF, 0x80, 0x00, 0xFF}, pixels[:5])

			reply, err = client.Get(ctx, "/hexpng/00ff0080")
			require.NoError(t, err)
			require.True(t, reply.OK())
			_, pixels = decodeImage(t, reply.Body)
			assert.Equal(t, []byte{0, 0x00, 0xFF, 0x00, 0x80}, pixels[:5])

			for _, path := range []string{"/hexpng/fff", "/hexpng/zzzzzz", "/hexpng/", "/missing", ""} {
				reply, err = client.Get(ctx, path)
				require.NoError(t, err, path)
				assert.False(t, reply.OK(), path)
				assert.Equal(t, notFoundPage, reply.Body, path)
			}

			require.NoError(t, client.Ping(ctx))
		})
	}
}

func TestServerCompressedReplies(t *testing.T) {
	srv := startServer(t, func(cfg *chunkhub_config.SocketConfig) {
		cfg.EnableCompression = true
	})
	client := dial(t, srv, protocol.WithCompression(true))

	// Padding pushes the request above the compression threshold
	reply, err := client.Get(testContext(t), "/"+string(bytes.Repeat([]byte{' '}, 300)))
	require.NoError(t, err)
	assert.Equal(t, indexPage, reply.Body)
	assert.False(t, protocol.HasFlag(reply.Header.Flags, protocol.FlagCompressed))
}

func TestServerMetrics(t *testing.T) {
	srv := startServer(t, nil)
	client := dial(t, srv)
	ctx := testContext(t)

	for i := 0; i < 3; i++ {
		_, err := client.Get(ctx, "/")
		require.NoError(t, err)
	}
	_, err := client.Get(ctx, "/nope")
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx))

	m := srv.Metrics()
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(routeIndex, statusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(routeNotFound, statusNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(routeHeartbeat, statusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveConnections))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.ResponseBytes), float64(3*len(indexPage)+len(notFoundPage)))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `chunkhub_requests_total{route="index",status="ok"} 3`)
	assert.Contains(t, rec.Body.String(), "chunkhub_request_duration_seconds_bucket")
}

func TestServerOverload(t *testing.T) {
	srv := startServer(t, func(cfg *chunkhub_config.SocketConfig) {
		cfg.Workers = 1
		cfg.MaxClients = 1
	})
	ctx := testContext(t)

	// First connection occupies the only worker
	busy := dial(t, srv)
	require.NoError(t, busy.Ping(ctx))

	// Second waits in the queue
	queued := dial(t, srv)
	require.Eventually(t, func() bool { return srv.pool.Waiting() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Third is dropped
	dropped := dial(t, srv)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(srv.Metrics().RejectedConnections) == 1
	}, 2*time.Second, 10*time.Millisecond)
	_, err := dropped.Get(ctx, "/")
	assert.Error(t, err)

	// Releasing the worker lets the queued connection through
	require.NoError(t, busy.Close())
	require.NoError(t, queued.Ping(ctx))
}

func TestServerSurvivesMalformedDatagrams(t *testing.T) {
	srv := startServer(t, func(cfg *chunkhub_config.SocketConfig) {
		cfg.Protocol = protocol.ProtocolUDP
	})

	raw, err := net.Dial("udp", srv.Addr().String())
	require.NoError(t, err)
	defer raw.Close()

	headerBytes, err := protocol.HeaderEncode(&protocol.SocketHeader{
		ID:       uuid.New(),
		Protocol: protocol.ProtocolUDP,
		Length:   ^uint64(0) - 1,
	})
	require.NoError(t, err)
	hostile := append([]byte{uint8(len(headerBytes))}, headerBytes...)
	hostile = append(hostile, 0xAA, 0xBB)

	for _, datagram := range [][]byte{
		{0xFF},
		[]byte("GET / HTTP/1.0\r\n\r\n"),
		bytes.Repeat([]byte{0x7F}, 300),
		hostile,
	} {
		_, err := raw.Write(datagram)
		require.NoError(t, err)
	}

	client := dial(t, srv)
	require.NoError(t, client.Ping(testContext(t)))

	reply, err := client.Get(testContext(t), "/")
	require.NoError(t, err)
	assert.True(t, reply.OK())
}

func TestServerClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv, err := New(nil, nil, WithListener(ln))
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(context.Background()) }()

	client := dial(t, srv)
	require.NoError(t, client.Ping(testContext(t)))

	require.NoError(t, srv.Close())
	require.NoError(t, <-errc)
	require.NoError(t, srv.Close())

	// The open connection was interrupted
	_, err = client.Get(testContext(t), "/")
	assert.Error(t, err)

	assert.ErrorIs(t, srv.Listen(), ErrServerClosed)
}

func TestClientContext(t *testing.T) {
	// A raw listener that never answers
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			_, _ = io.Copy(io.Discard, conn)
		}
	}()

	c, err := Dial(context.Background(), "tcp", ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Get(ctx, "/")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, c.Close())
	_, err = c.Get(context.Background(), "/")
	assert.ErrorIs(t, err, ErrClientClosed)

	_, err = Dial(context.Background(), "sctp", ln.Addr().String())
	assert.Error(t, err)
}

func TestHandle(t *testing.T) {
	srv, err := New(nil, nil)
	require.NoError(t, err)
	defer srv.Close()

	id := uuid.New()
	resp, body := srv.handle(&protocol.SocketHeader{
		ID:          id,
		MessageType: protocol.MessageTypeHeartbeat,
		Router:      7,
	}, []byte("beat"))
	assert.Equal(t, id, resp.ID)
	assert.Equal(t, uint8(7), resp.Router)
	assert.Equal(t, protocol.MessageTypeHeartbeat, resp.MessageType)
	assert.Equal(t, protocol.FlagACK, resp.Flags)
	assert.Equal(t, []byte("beat"), body)

	resp, body = srv.handle(&protocol.SocketHeader{ID: id, MessageType: protocol.MessageTypeResponse, Router: 9}, nil)
	assert.Equal(t, uint8(9), resp.Router)
	assert.True(t, protocol.HasFlag(resp.Flags, protocol.FlagError))
	assert.Contains(t, string(body), "Response")

	resp, body = srv.handle(&protocol.SocketHeader{ID: id, MessageType: protocol.MessageTypeRequest}, []byte("/hexpng/123456"))
	assert.Equal(t, protocol.FlagNone, resp.Flags)
	assert.True(t, bytes.HasPrefix(body, []byte(png.Signature)))
}

func TestParseHexColor(t *testing.T) {
	cases := []struct {
		in   string
		want color.RGBA
		ok   bool
	}{
		{"ff0000", color.RGBA{R: 0xFF, A: 0xFF}, true},
		{"00FF00", color.RGBA{G: 0xFF, A: 0xFF}, true},
		{"0000ff7f", color.RGBA{B: 0xFF, A: 0x7F}, true},
		{"AbCdEf00", color.RGBA{R: 0xAB, G: 0xCD, B: 0xEF}, true},
		{"fff", color.RGBA{}, false},
		{"ff00000", color.RGBA{}, false},
		{"gg0000", color.RGBA{}, false},
		{"", color.RGBA{}, false},
	}
	for _, tc := range cases {
		got, err := parseHexColor(tc.in)
		if !tc.ok {
			assert.ErrorIs(t, err, errBadColor, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}
