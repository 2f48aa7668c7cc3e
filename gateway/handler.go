// Package gateway exposes the hub over HTTP: a websocket endpoint carrying
// room frames and a small REST surface for media grants and health.
package gateway

import (
	"context"
	"fmt"
	"live-hub/auth"
	"live-hub/domain"
	"live-hub/errors"
	"live-hub/runtime"
	"live-hub/services"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

type Config struct {
	WriteTimeout   time.Duration
	PongWait       time.Duration
	ReadLimit      int64
	AllowedOrigins []string
}

// pingPeriod must stay below the pong wait so a healthy client never times out.
func (c Config) pingPeriod() time.Duration {
	return c.PongWait * 9 / 10
}

type Handler struct {
	service  services.IRoomService
	upgrader websocket.Upgrader
	cfg      Config
	log      *slog.Logger
}

func NewHandler(service services.IRoomService, cfg Config, log *slog.Logger) *Handler {
	h := &Handler{service: service, cfg: cfg, log: log}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	return lo.Contains(h.cfg.AllowedOrigins, r.Header.Get("Origin"))
}

// ServeWS upgrades an authenticated request and runs the session until the
// socket closes.
func (h *Handler) ServeWS(c *gin.Context) {
	identity, ok := auth.IdentityFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"reason": errors.ReasonUnauthorized})
		return
	}
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "user_id", identity.UserID, "error", err)
		return
	}
	s := &session{
		handler:  h,
		identity: identity,
		ws:       ws,
		socket:   NewWSTransport(ws, h.cfg.WriteTimeout),
		log:      h.log.With("user_id", identity.UserID),
	}
	s.run(c.Request.Context())
}

// session is the read side of one websocket. It joins at most one room at a
// time and translates client frames into service calls.
type session struct {
	handler  *Handler
	identity domain.Identity
	ws       *websocket.Conn
	socket   *WSTransport
	log      *slog.Logger

	connID  domain.ConnectionID
	member  *membership
	current *runtime.Connection
}

func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	defer s.socket.Close()
	defer s.leave()

	cfg := s.handler.cfg
	if cfg.ReadLimit > 0 {
		s.ws.SetReadLimit(cfg.ReadLimit)
	}
	if cfg.PongWait > 0 {
		_ = s.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
		s.ws.SetPongHandler(func(string) error {
			return s.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
		})
		go s.keepAlive(ctx, cfg.pingPeriod())
	}
	s.log.Debug("Session opened")

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Info("Session read failed", "error", err)
			}
			s.log.Debug("Session closed")
			return
		}
		s.handle(ctx, data)
	}
}

func (s *session) keepAlive(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.socket.ping(); err != nil {
				return
			}
		}
	}
}

func (s *session) handle(ctx context.Context, data []byte) {
	frame, err := decodeClientFrame(data)
	if err != nil {
		s.reject(ctx, err, "")
		return
	}
	switch frame.Type {
	case FrameJoin:
		s.join(ctx, frame)
	case FrameLeave:
		s.leave()
	default:
		s.publish(ctx, frame)
	}
}

func (s *session) join(ctx context.Context, frame ClientFrame) {
	key, err := domain.ParseRoomKey(frame.RoomKey)
	if err != nil {
		s.reject(ctx, err, frame.Type)
		return
	}
	// One room at a time
	s.leave()

	member := &membership{socket: s.socket}
	resume := runtime.Resume{RoomID: domain.RoomID(frame.LastRoomID), LastSeq: frame.LastSeq}
	conn, err := s.handler.service.Join(ctx, s.identity, member, key, resume)
	if err != nil {
		s.log.Info("Join rejected", "room_key", key, "error", err)
		s.reject(ctx, err, frame.Type)
		return
	}
	// The joined frame was written by the runtime ahead of the backfill
	s.connID, s.member, s.current = conn.ID, member, conn
}

func (s *session) publish(ctx context.Context, frame ClientFrame) {
	if s.current == nil {
		s.reject(ctx, fmt.Errorf("%w: not joined", errors.ErrRoomNotFound), frame.Type)
		return
	}
	payload, err := decodePayload(frame)
	if err != nil {
		s.reject(ctx, err, frame.Type)
		return
	}
	if _, err := s.handler.service.Publish(ctx, s.connID, payload); err != nil {
		s.reject(ctx, err, frame.Type)
	}
}

// leave detaches the membership so the socket survives the unregister.
func (s *session) leave() {
	if s.current == nil {
		return
	}
	s.member.detach()
	s.handler.service.Leave(s.connID)
	s.connID, s.member, s.current = "", nil, nil
}

func (s *session) reject(ctx context.Context, err error, frameType string) {
	if err := s.socket.WriteFrame(ctx, errorFrame(err, frameType)); err != nil {
		s.log.Debug("Error frame not written", "error", err)
	}
}
