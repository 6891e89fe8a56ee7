package signaling

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NuclearLighthouseStudios/Screenhead-Arena-Server/internal/lobby"
	"github.com/NuclearLighthouseStudios/Screenhead-Arena-Server/internal/metrics"
	"github.com/NuclearLighthouseStudios/Screenhead-Arena-Server/internal/ratelimit"
)

// Config configures the WebSocket endpoint. Zero values fall back to the
// documented defaults.
type Config struct {
	Registry *lobby.Registry
	Logger   *slog.Logger
	Metrics  *metrics.Metrics

	// PingInterval is how often the server probes every connection with a
	// WebSocket ping.
	PingInterval time.Duration

	// IdleTimeout drops connections that produce neither frames nor pongs.
	IdleTimeout time.Duration

	// MaxMessageBytes caps inbound frame size. SDP payloads are a few KB;
	// anything larger is a misbehaving client.
	MaxMessageBytes int64

	// MaxMessagesPerSecond limits inbound frames per connection.
	MaxMessagesPerSecond int
}

const (
	defaultPingInterval    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultMaxMessageBytes = 64 * 1024
	defaultMaxMessagesRate = 50
)

// Server terminates WebSocket connections and feeds their frames to the
// lobby registry.
type Server struct {
	cfg        Config
	log        *slog.Logger
	metrics    *metrics.Metrics
	registry   *lobby.Registry
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	if cfg.MaxMessagesPerSecond <= 0 {
		cfg.MaxMessagesPerSecond = defaultMaxMessagesRate
	}

	return &Server{
		cfg:        cfg,
		log:        cfg.Logger,
		metrics:    cfg.Metrics,
		registry:   cfg.Registry,
		dispatcher: NewDispatcher(cfg.Registry),
		upgrader: websocket.Upgrader{
			// Game clients connect from arbitrary origins (itch.io embeds,
			// local builds), so origin checks stay off.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	wc := newWSConn(ws, s.metrics)
	p, err := s.registry.Admit(wc)
	if err != nil {
		var pe *lobby.ProtoError
		if errors.As(err, &pe) {
			wc.CloseWith(pe.Code, pe.Reason)
		} else {
			wc.CloseWith(lobby.CloseInternalError, "INTERNAL_ERROR")
		}
		return
	}

	defer s.registry.Release(p)
	defer wc.CloseWith(lobby.CloseNormal, "BYE")

	s.readLoop(p, wc, ws)
}

func (s *Server) readLoop(p *lobby.Peer, wc *wsConn, ws *websocket.Conn) {
	ws.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	})

	rate := int64(s.cfg.MaxMessagesPerSecond)
	bucket := ratelimit.NewTokenBucket(nil, rate, rate)

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))

		if msgType != websocket.TextMessage {
			s.metrics.Inc(metrics.DropReasonProtocolError)
			wc.CloseWith(lobby.CloseUnsupportedData, "INVALID_TRANSFER_MODE")
			return
		}

		// Read first, then limit: rejecting without draining the frame would
		// reset the TCP connection before the close frame is delivered.
		if !bucket.Allow(1) {
			s.metrics.Inc(metrics.DropReasonRateLimited)
			wc.CloseWith(websocket.ClosePolicyViolation, "RATE_LIMITED")
			return
		}

		if err := s.dispatcher.Dispatch(p, string(data)); err != nil {
			var pe *lobby.ProtoError
			if errors.As(err, &pe) {
				s.metrics.Inc(metrics.DropReasonProtocolError)
				s.log.Debug("protocol violation", "peer", p.ID(), "reason", pe.Reason)
				wc.CloseWith(pe.Code, pe.Reason)
			} else {
				s.log.Error("dispatch failed", "peer", p.ID(), "err", err)
				wc.CloseWith(lobby.CloseInternalError, "INTERNAL_ERROR")
			}
			return
		}
	}
}

// Run drives the keepalive probe loop until ctx is cancelled. Connections
// that miss every probe are reaped by their read deadline.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range s.registry.Conns() {
				_ = c.Ping()
			}
		}
	}
}
