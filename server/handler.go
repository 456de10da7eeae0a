package server

import (
	_ "embed"
	"encoding/hex"
	"image/color"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	socketlog "github.com/Jdcabreradev/chunkhub/logger"
	"github.com/Jdcabreradev/chunkhub/png"
	"github.com/Jdcabreradev/chunkhub/protocol"
)

//go:embed html/index.html
var indexPage []byte

//go:embed html/404.html
var notFoundPage []byte

const hexPNGPrefix = "/hexpng/"

// Metric label values
const (
	routeIndex     = "index"
	routeHexPNG    = "hexpng"
	routeNotFound  = "not_found"
	routeHeartbeat = "heartbeat"
	routeInvalid   = "invalid"

	statusOK         = "ok"
	statusNotFound   = "not_found"
	statusBadRequest = "bad_request"
	statusError      = "error"
)

var errBadColor = errors.New("server: color must be 6 or 8 hex digits")

// parseHexColor decodes RRGGBB or RRGGBBAA in either case. Alpha defaults to 0xFF.
func parseHexColor(s string) (color.RGBA, error) {
	if len(s) != 6 && len(s) != 8 {
		return color.RGBA{}, errBadColor
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return color.RGBA{}, errors.Wrap(errBadColor, err.Error())
	}
	c := color.RGBA{R: b[0], G: b[1], B: b[2], A: 0xFF}
	if len(b) == 4 {
		c.A = b[3]
	}
	return c, nil
}

// handle builds the response to one frame. Responses reuse the request's ID and Router.
func (s *Server) handle(h *protocol.SocketHeader, payload []byte) (*protocol.SocketHeader, []byte) {
	start := time.Now()
	resp := &protocol.SocketHeader{
		ID:          h.ID,
		Sender:      s.id,
		MessageType: protocol.MessageTypeResponse,
		Router:      h.Router,
		Protocol:    h.Protocol,
	}

	var route, status string
	var body []byte
	switch h.MessageType {
	case protocol.MessageTypeHeartbeat:
		resp.MessageType = protocol.MessageTypeHeartbeat
		resp.Flags = protocol.FlagACK
		route, status, body = routeHeartbeat, statusOK, payload
	case protocol.MessageTypeRequest:
		route, status, body = s.route(string(payload))
	default:
		route, status = routeInvalid, statusBadRequest
		body = []byte("unsupported message type " + h.MessageType.String())
	}
	if status != statusOK {
		resp.Flags = protocol.SetFlag(resp.Flags, protocol.FlagError)
	}

	s.metrics.observe(route, status, len(body), time.Since(start))
	s.log.Log("Router", socketlog.DEBUG, "request served",
		zap.Stringer("id", h.ID),
		zap.String("route", route),
		zap.String("status", status),
		zap.Int("bytes", len(body)),
	)
	return resp, body
}

// route resolves a request path to a metric route, a status and the response body.
func (s *Server) route(path string) (string, string, []byte) {
	path = strings.TrimSpace(path)
	if path == "/" {
		return routeIndex, statusOK, indexPage
	}

	code, ok := strings.CutPrefix(path, hexPNGPrefix)
	if !ok {
		return routeNotFound, statusNotFound, notFoundPage
	}
	c, err := parseHexColor(code)
	if err != nil {
		return routeHexPNG, statusNotFound, notFoundPage
	}

	img, err := s.renderPNG(c)
	if err != nil {
		s.log.Log("Router", socketlog.ERROR, "png encoding failed", zap.Error(err))
		return routeHexPNG, statusError, []byte(err.Error())
	}
	return routeHexPNG, statusOK, img
}

func (s *Server) renderPNG(c color.RGBA) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	err := png.Encode(buf, png.Options{
		Width:  s.cfg.ImageWidth,
		Height: s.cfg.ImageHeight,
		Color:  c,
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.B...), nil
}
