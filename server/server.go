// Package server serves the chunkhub routes over the framed protocol, on TCP
// through a bounded worker pool or on UDP from a single read loop.
package server

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	chunkhub_config "github.com/Jdcabreradev/chunkhub/config"
	socketlog "github.com/Jdcabreradev/chunkhub/logger"
	"github.com/Jdcabreradev/chunkhub/protocol"
)

const consumer = "Server"

var (
	ErrServerClosed = errors.New("server: closed")
	ErrNotListening = errors.New("server: not listening")
)

// Option configures a Server.
type Option func(*Server)

// WithRegistry registers the server metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithConnOptions appends protocol options applied to every connection.
func WithConnOptions(opts ...protocol.ConnOption) Option {
	return func(s *Server) {
		s.connOpts = append(s.connOpts, opts...)
	}
}

// WithListener serves TCP on ln instead of binding the configured address.
func WithListener(ln net.Listener) Option {
	return func(s *Server) {
		s.listener = ln
	}
}

// WithPacketConn serves UDP on pc instead of binding the configured address.
func WithPacketConn(pc net.PacketConn) Option {
	return func(s *Server) {
		s.packet = pc
	}
}

// Server answers framed requests. Create it with New.
type Server struct {
	cfg      *chunkhub_config.SocketConfig
	log      *socketlog.Logger
	id       uuid.UUID
	registry *prometheus.Registry
	metrics  *Metrics
	pool     *ants.Pool
	connOpts []protocol.ConnOption

	mu       sync.Mutex
	listener net.Listener
	packet   net.PacketConn
	conns    map[net.Conn]struct{}
	closed   bool
	done     chan struct{} // closed once Close has finished
	wg       sync.WaitGroup
}

// New validates cfg and creates a Server. A nil log logs to the console only.
func New(cfg *chunkhub_config.SocketConfig, log *socketlog.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = chunkhub_config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "server: invalid config")
	}
	if log == nil {
		var err error
		if log, err = socketlog.NewLogger("", socketlog.DEV); err != nil {
			return nil, err
		}
	}

	s := &Server{
		cfg:   cfg,
		log:   log,
		id:    uuid.New(),
		conns: make(map[net.Conn]struct{}),
		done:  make(chan struct{}),
		connOpts: []protocol.ConnOption{
			protocol.WithCompression(cfg.EnableCompression),
			protocol.WithMaxMessageSize(cfg.MaxMessageSize),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = NewMetrics(s.registry)

	if s.listener != nil || (s.packet == nil && cfg.Protocol == protocol.ProtocolTCP) {
		pool, err := ants.NewPool(cfg.Workers, ants.WithMaxBlockingTasks(int(cfg.MaxClients)))
		if err != nil {
			return nil, errors.Wrap(err, "server: create worker pool")
		}
		s.pool = pool
	}
	return s, nil
}

// ID returns the sender ID stamped on responses.
func (s *Server) ID() uuid.UUID {
	return s.id
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Listen binds the configured address. Serve calls it when needed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	if s.listener != nil || s.packet != nil {
		return nil
	}

	addr := s.cfg.Address()
	switch s.cfg.Protocol {
	case protocol.ProtocolUDP:
		pc, err := net.ListenPacket("udp", addr)
		if err != nil {
			return errors.Wrapf(err, "server: listen udp %s", addr)
		}
		s.packet = pc
	default:
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return errors.Wrapf(err, "server: listen tcp %s", addr)
		}
		if s.cfg.TLSConfig != nil {
			ln = tls.NewListener(ln, s.cfg.TLSConfig)
		}
		s.listener = ln
	}

	s.log.Log(consumer, socketlog.INFO, "listening",
		zap.String("protocol", s.cfg.Protocol.String()),
		zap.String("addr", s.addrLocked().String()),
		zap.Int("workers", s.cfg.Workers),
	)
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addrLocked()
}

func (s *Server) addrLocked() net.Addr {
	switch {
	case s.listener != nil:
		return s.listener.Addr()
	case s.packet != nil:
		return s.packet.LocalAddr()
	}
	return nil
}

// Serve handles connections until ctx is cancelled or Close is called, in
// which case it returns nil.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		if err := s.Close(); err != nil {
			s.log.Log(consumer, socketlog.WARNING, "close failed", zap.Error(err))
		}
	})
	defer stop()

	s.mu.Lock()
	ln, pc := s.listener, s.packet
	s.mu.Unlock()

	var err error
	switch {
	case pc != nil:
		err = s.servePackets(pc)
	case ln != nil:
		err = s.acceptLoop(ln)
	default:
		return ErrNotListening
	}
	if err == nil {
		<-s.done
	}
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) acceptLoop(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return errors.Wrap(err, "server: accept")
		}

		if !s.track(conn) {
			_ = conn.Close()
			return nil
		}
		go s.dispatch(conn)
	}
}

// track registers conn so Close can interrupt it. It reports false once closed.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

// dispatch queues conn on the worker pool, waiting while all workers are busy.
func (s *Server) dispatch(conn net.Conn) {
	err := s.pool.Submit(func() {
		s.serveConn(conn)
	})
	if err == nil {
		return
	}

	if errors.Is(err, ants.ErrPoolOverload) {
		s.metrics.RejectedConnections.Inc()
		s.log.Log(consumer, socketlog.WARNING, "worker queue full, dropping connection",
			zap.Stringer("remote", conn.RemoteAddr()))
	}
	_ = conn.Close()
	s.untrack(conn)
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	s.metrics.ActiveConnections.Inc()
	defer s.metrics.ActiveConnections.Dec()

	fc := protocol.NewTCPConnWrapper(conn, s.connOpts...)
	fc.SetSender(s.id)
	remote := zap.Stringer("remote", conn.RemoteAddr())
	s.log.Log(consumer, socketlog.DEBUG, "connection opened", remote)

	for {
		if s.cfg.ReadTimeout > 0 {
			_ = fc.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		h, payload, err := fc.ReadFrame()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), s.isClosed():
				s.log.Log(consumer, socketlog.DEBUG, "connection closed", remote)
			default:
				s.log.Log(consumer, socketlog.WARNING, "dropping connection", remote, zap.Error(err))
			}
			return
		}

		resp, body := s.handle(h, payload)
		if s.cfg.WriteTimeout > 0 {
			_ = fc.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		}
		if err := fc.WriteFrame(resp, body); err != nil {
			s.log.Log(consumer, socketlog.WARNING, "write failed", remote, zap.Error(err))
			return
		}
	}
}

func (s *Server) servePackets(pc net.PacketConn) error {
	fc := protocol.NewUDPConnWrapper(pc, nil, s.cfg.BufferSize, s.connOpts...)
	fc.SetSender(s.id)

	for {
		h, payload, err := fc.ReadFrame()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Log(consumer, socketlog.WARNING, "dropping datagram",
				zap.Stringer("remote", fc.RemoteAddr()), zap.Error(err))
			continue
		}

		resp, body := s.handle(h, payload)
		err = fc.WriteFrame(resp, body)
		if errors.Is(err, protocol.ErrMessageTooLarge) {
			resp.Flags = protocol.SetFlag(resp.Flags, protocol.FlagError)
			err = fc.WriteFrame(resp, []byte("response exceeds the datagram size"))
		}
		if err != nil {
			s.log.Log(consumer, socketlog.WARNING, "write failed",
				zap.Stringer("remote", fc.RemoteAddr()), zap.Error(err))
		}
	}
}

// Close stops accepting, interrupts open connections and waits for the
// workers to finish. It is safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true

	var errs error
	if s.listener != nil {
		errs = errors.CombineErrors(errs, s.listener.Close())
	}
	if s.packet != nil {
		errs = errors.CombineErrors(errs, s.packet.Close())
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	if s.pool != nil {
		s.pool.Release()
	}
	s.wg.Wait()

	s.log.Log(consumer, socketlog.INFO, "server stopped")
	close(s.done)
	return errs
}
