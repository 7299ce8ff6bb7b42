// Package gateway serves the realtime websocket API. Each connection is a
// session that may bind to one player; room events are forwarded to it and
// failures are answered with a private error frame.
package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"azukibar/internal/game"
	"azukibar/internal/protocol"
	"azukibar/pkg/realtime"
)

var errRateLimited = errors.New("too many actions, slow down")

// Options tune a Gateway. Zero values get defaults.
type Options struct {
	// Rate and Burst bound actions per connection.
	Rate  rate.Limit
	Burst int
	// NewID names each connection.
	NewID func() string
}

// Gateway serves the realtime websocket endpoint over a room registry.
type Gateway struct {
	reg      *game.Registry
	log      zerolog.Logger
	opts     Options
	upgrader websocket.Upgrader
}

// New builds a Gateway. Each connection gets its own session.
func New(reg *game.Registry, log zerolog.Logger, opts Options) *Gateway {
	if opts.Rate == 0 {
		opts.Rate = 5
	}
	if opts.Burst == 0 {
		opts.Burst = 10
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Gateway{
		reg:  reg,
		log:  log.With().Str("component", "gateway").Logger(),
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// RegisterRoutes mounts GET /ws.
func (g *Gateway) RegisterRoutes(r chi.Router) {
	r.Get("/ws", g.serveWS)
}

func (g *Gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	socket, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	conn := newWSConn(socket)
	s := g.newSession(conn)
	defer s.close()
	g.log.Debug().Str("conn", s.id).Msg("connected")
	s.send(protocol.MsgWelcome, protocol.Welcome{ConnectionID: s.id})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	ctx := r.Context()
	for {
		_, msg, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.Debug().Err(err).Str("conn", s.id).Msg("read failed")
			}
			return
		}
		s.handle(ctx, msg)
	}
}

func (g *Gateway) newSession(conn Conn) *session {
	return &session{
		g:       g,
		conn:    conn,
		id:      g.opts.NewID(),
		limiter: rate.NewLimiter(g.opts.Rate, g.opts.Burst),
	}
}

// session is driven by a single read goroutine; only event forwarding runs
// elsewhere.
type session struct {
	g       *Gateway
	conn    Conn
	id      string
	limiter *rate.Limiter

	playerID  string
	roomID    string
	spectator bool
	hub       *realtime.Broadcaster
	sub       chan realtime.Event
}

func (s *session) send(t string, payload any) {
	b, err := protocol.Encode(t, payload)
	if err != nil {
		s.g.log.Error().Err(err).Str("type", t).Msg("encode failed")
		return
	}
	if err := s.conn.Send(b); err != nil {
		s.g.log.Debug().Err(err).Str("conn", s.id).Msg("send failed")
	}
}

func (s *session) fail(err error) {
	s.send(protocol.MsgError, protocol.Error{Message: err.Error()})
}

// follow forwards roomID's events to this connection, dropping events
// addressed to someone else.
func (s *session) follow(roomID, who string) {
	s.unfollow()
	hub, ok := s.g.reg.Broadcaster(roomID)
	if !ok {
		return
	}
	ch := hub.Subscribe()
	s.hub, s.sub, s.roomID = hub, ch, roomID
	go func() {
		for e := range ch {
			if e.To != "" && e.To != who {
				continue
			}
			s.send(e.Name, e.Payload)
		}
	}()
}

func (s *session) unfollow() {
	if s.hub != nil {
		s.hub.Unsubscribe(s.sub)
	}
	s.hub, s.sub, s.roomID = nil, nil, ""
}

func (s *session) close() {
	switch {
	case s.spectator:
		if room, ok := s.g.reg.Room(s.roomID); ok {
			room.RemoveSpectator(s.playerID)
		}
	case s.playerID != "":
		if _, _, err := s.g.reg.Leave(s.playerID); err != nil && !errors.Is(err, game.ErrNotFound) {
			s.g.log.Warn().Err(err).Str("player", s.playerID).Msg("leave on disconnect failed")
		}
	}
	s.unfollow()
	_ = s.conn.Close()
	s.g.log.Debug().Str("conn", s.id).Msg("disconnected")
}
