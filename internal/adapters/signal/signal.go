// Package signal is the relay's websocket endpoint: it authenticates a join credential, then forwards
// negotiation messages between peers and fans room-wide announcements out through the orchestrator.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/auth"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	// ChatLimit messages per ChatInterval are accepted from one participant.
	ChatLimit    int
	ChatInterval time.Duration
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Signer  *auth.Signer
	Metrics *metrics.Relay

	opts    Options
	limiter *ChatLimiter
}

func NewSignalWSController(o *orch.Orchestrator, signer *auth.Signer, m *metrics.Relay, opts Options) *SignalWSController {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32768
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.ChatLimit <= 0 {
		opts.ChatLimit = 5
	}
	if opts.ChatInterval <= 0 {
		opts.ChatInterval = 5 * time.Second
	}
	return &SignalWSController{
		Orch:    o,
		Signer:  signer,
		Metrics: m,
		opts:    opts,
		limiter: NewChatLimiter(opts.ChatLimit, opts.ChatInterval),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// peer is one authenticated websocket connection.
type peer struct {
	claims auth.Claims
	conn   *WsSignalConn
	sess   core.MemberSession
	cancel context.CancelFunc

	mu     sync.Mutex
	joined bool
}

func (p *peer) id() domain.ParticipantID { return p.claims.Subject }

func (p *peer) isJoined() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.joined
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal verifies the ?token= credential before upgrading, so a bad credential is a plain 401.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	claims, err := ctl.Signer.Verify(c.Query("token"))
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("rejected credential")
		ctl.reject(err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if _, busy := ctl.Orch.Registry.GetSession(claims.Subject); busy {
		ctl.reject(orch.ErrAlreadyConnected)
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": orch.ErrAlreadyConnected.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("peer", string(claims.Subject)).Str("room", string(claims.Room)).Msg("new WS connection")

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	user := &domain.User{ID: claims.Subject, Username: claims.Name}
	ctx, cancel := context.WithCancel(ctx)
	p := &peer{
		claims: claims,
		conn:   conn,
		sess:   core.NewMemberSession(domain.NewMember(user), conn),
		cancel: cancel,
	}

	go ctl.writePump(ctx, p)
	go ctl.readPump(ctx, p)
}

func (ctl *SignalWSController) reject(err error) {
	if ctl.Metrics == nil {
		return
	}
	reason := "credential"
	switch {
	case errors.Is(err, auth.ErrExpired):
		reason = "expired"
	case errors.Is(err, orch.ErrAlreadyConnected):
		reason = "duplicate"
	case errors.Is(err, orch.ErrRoomFull):
		reason = "full"
	}
	ctl.Metrics.JoinsRejected.WithLabelValues(reason).Inc()
}
