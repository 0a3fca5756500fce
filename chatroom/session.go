package chatroom

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chathub/hub"
	"chathub/metrics"
	"chathub/types"

	"github.com/gorilla/websocket"
)

const (
	WelcomeBody = "Welcome to the chat!"

	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	storeTimeout = 5 * time.Second
)

// Conn is the subset of *websocket.Conn a Session drives.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

type SessionState int32

const (
	StateConnecting SessionState = iota
	StateUpgraded
	StateActive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateUpgraded:
		return "upgraded"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session owns one client connection. Once active it runs an outbound loop
// (hub -> client) and an inbound loop (client -> hub); it is closed only
// after both have returned.
type Session struct {
	room        *ChatRoom
	conn        Conn
	fingerprint string
	username    string
	log         *slog.Logger
	state       atomic.Int32
}

func NewSession(room *ChatRoom, conn Conn, fingerprint string) *Session {
	return &Session{
		room:        room,
		conn:        conn,
		fingerprint: fingerprint,
		log:         room.logger(),
	}
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Username is empty until the session has been upgraded.
func (s *Session) Username() string {
	return s.username
}

func (s *Session) Run(ctx context.Context) {
	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()
	defer s.state.Store(int32(StateClosed))

	s.username = s.room.Derive(s.fingerprint)
	s.log = s.log.With("identity", s.username)
	s.state.Store(int32(StateUpgraded))
	s.log.Info("Client connected")
	defer s.log.Info("Client disconnected")

	if err := s.sendHistory(ctx); err != nil {
		s.log.Debug("Failed to send history", "error", err)
		return
	}
	if err := s.sendWelcome(); err != nil {
		s.log.Debug("Failed to send welcome", "error", err)
		return
	}

	sub := s.room.Hub.Subscribe()
	defer sub.Close()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.state.Store(int32(StateActive))

	inboundDone := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(inboundDone)
		s.readPump(ctx)
	}()
	go func() {
		defer wg.Done()
		s.writePump(sub, inboundDone)
	}()
	wg.Wait()
}

func (s *Session) sendHistory(ctx context.Context) error {
	messages, err := s.room.History.Recent(ctx, s.room.historyLimit())
	if err != nil {
		// history is best effort; the live feed still starts
		metrics.HistoryErrorsTotal.WithLabelValues("recent").Inc()
		s.log.Error("Failed to load chat history", "error", err)
		return nil
	}
	for _, msg := range messages {
		if err := s.write(msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) sendWelcome() error {
	msg, err := types.NewChatMessage(s.username, WelcomeBody, s.room.clock().Now())
	if err != nil {
		return err
	}
	return s.write(msg)
}

// writePump forwards hub traffic. It returns when a write fails, the
// subscription closes, or the read side has finished.
func (s *Session) writePump(sub *hub.Subscription, inboundDone <-chan struct{}) {
	defer s.beginClosing()

	ticker := s.room.clock().NewTicker(pingPeriod)
	defer ticker.Stop()

	var dropped uint64
	for {
		select {
		case msg, ok := <-sub.C():
			if !ok {
				s.writeClose(websocket.CloseGoingAway, "server shutting down")
				return
			}
			if n := sub.Dropped(); n > dropped {
				s.log.Warn("Client lagging, dropped broadcast messages", "dropped", n-dropped)
				dropped = n
			}
			if err := s.write(msg); err != nil {
				s.log.Debug("Write failed", "error", err)
				return
			}
		case <-ticker.Chan():
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Debug("Ping failed", "error", err)
				return
			}
		case <-inboundDone:
			return
		}
	}
}

// readPump handles client frames until the transport fails, the client
// closes, or a non-text frame arrives.
func (s *Session) readPump(ctx context.Context) {
	defer s.beginClosing()

	for {
		messageType, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.log.Debug("Read failed", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			s.log.Debug("Non-text frame, ending stream", "type", messageType)
			return
		}
		s.handleMessage(ctx, string(raw))
	}
}

// handleMessage runs one payload through parse, throttle and build, then
// persists and publishes it. Rejected payloads are dropped silently.
func (s *Session) handleMessage(ctx context.Context, raw string) {
	payload, err := types.ParseInbound(raw)
	if err != nil {
		s.reject("empty_body", err)
		return
	}

	now := s.room.clock().Now()
	if !s.room.Limiter.TryAccept(s.username, now) {
		s.reject("rate_limited", nil)
		return
	}

	msg, err := payload.ToChatMessage(s.username, now)
	if err != nil {
		s.reject("too_large", err)
		return
	}

	saveCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	err = s.room.History.Save(saveCtx, msg)
	cancel()
	if err != nil {
		// broadcast regardless; the message is not retried
		metrics.HistoryErrorsTotal.WithLabelValues("save").Inc()
		s.log.Error("Failed to save message", "message_id", msg.ID, "error", err)
	}

	s.room.Hub.Publish(msg)
	metrics.MessagesAcceptedTotal.Inc()
}

func (s *Session) reject(reason string, err error) {
	metrics.MessagesRejectedTotal.WithLabelValues(reason).Inc()
	if err != nil && !errors.Is(err, types.ErrEmptyBody) {
		s.log.Debug("Message dropped", "reason", reason, "error", err)
		return
	}
	s.log.Debug("Message dropped", "reason", reason)
}

func (s *Session) write(msg types.ChatMessage) error {
	raw, err := msg.Encode()
	if err != nil {
		return err
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}

func (s *Session) writeClose(code int, reason string) {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}

func (s *Session) beginClosing() {
	s.state.CompareAndSwap(int32(StateActive), int32(StateClosing))
}
