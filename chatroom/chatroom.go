package chatroom

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"chathub/history"
	"chathub/hub"
	"chathub/identity"
	"chathub/metrics"
	"chathub/throttle"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultHistoryLimit = 100
	DefaultReadLimit    = 64 * 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ChatRoom is the single process-wide room every socket joins.
type ChatRoom struct {
	Hub          *hub.Hub
	History      history.Store
	Limiter      *throttle.Limiter
	Identities   *identity.Deriver
	Clock        clockwork.Clock
	Logger       *slog.Logger
	HistoryLimit int
	// ReadLimit bounds a single inbound frame; it sits well above
	// types.MaxMessageSize so oversized chat is dropped, not disconnected.
	ReadLimit int64

	sessions sync.WaitGroup
}

// HandleSocket upgrades the request and runs a session until both of its
// loops have finished.
func (r *ChatRoom) HandleSocket(c *gin.Context) {
	// the fingerprint binds to the socket peer; forwarding headers are
	// client controlled
	peer := c.RemoteIP()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.logger().Warn("WebSocket upgrade failed", "error", err, "remote_ip", peer)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(r.readLimit())

	r.sessions.Add(1)
	defer r.sessions.Done()

	fingerprint := identity.Fingerprint(peer, c.Request.UserAgent())
	session := NewSession(r, conn, fingerprint)
	session.log = session.log.With("remote_ip", peer, "client_ip", c.ClientIP())
	session.Run(c.Request.Context())
}

// Wait blocks until every running session has closed or ctx is done.
func (r *ChatRoom) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Derive resolves the identity for fingerprint and keeps the cache gauge
// current.
func (r *ChatRoom) Derive(fingerprint string) string {
	username := r.Identities.Derive(fingerprint)
	metrics.IdentitiesCached.Set(float64(r.Identities.Len()))
	return username
}

func (r *ChatRoom) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *ChatRoom) clock() clockwork.Clock {
	if r.Clock == nil {
		return clockwork.NewRealClock()
	}
	return r.Clock
}

func (r *ChatRoom) historyLimit() int {
	if r.HistoryLimit <= 0 {
		return DefaultHistoryLimit
	}
	return r.HistoryLimit
}

func (r *ChatRoom) readLimit() int64 {
	if r.ReadLimit <= 0 {
		return DefaultReadLimit
	}
	return r.ReadLimit
}
