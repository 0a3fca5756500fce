package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chathub/chatroom"
	"chathub/config"
	"chathub/hub"
	"chathub/identity"
	"chathub/throttle"
	"chathub/types"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		Port:               "5000",
		HistoryBackend:     config.BackendBadger,
		HistoryLimit:       chatroom.DefaultHistoryLimit,
		HistoryRetain:      1000,
		BroadcastBuffer:    hub.DefaultCapacity,
		MinMessageInterval: throttle.DefaultMinInterval,
		MaxFrameBytes:      chatroom.DefaultReadLimit,
		HTTPRateLimit:      150,
	}
}

func newTestRouter(t *testing.T, cfg config.Config) (*gin.Engine, *chatroom.ChatRoom) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := openHistory(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	room := &chatroom.ChatRoom{
		Hub:        hub.New(cfg.BroadcastBuffer),
		History:    store,
		Limiter:    throttle.NewLimiter(cfg.MinMessageInterval),
		Identities: identity.NewDeriver(),
		Logger:     logger,
	}
	r, err := newRouter(cfg, room, logger)
	require.NoError(t, err)
	return r, room
}

func get(r http.Handler, path string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRootRedirectsToChat(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := get(r, "/", nil)
	assert.Equal(t, http.StatusPermanentRedirect, w.Code)
	assert.Equal(t, "/chat", w.Header().Get("Location"))
}

func TestHealthRoutes(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := get(r, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "OK", health)

	w = get(r, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestChatPageUsesRequestHost(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := get(r, "/chat", func(req *http.Request) { req.Host = "chat.example.test:8080" })
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), `"chat.example.test:8080"`)
	assert.Contains(t, w.Body.String(), `const wsURL = "ws" + "://"`)
}

func TestChatPageHonoursForwardedProto(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := get(r, "/chat", func(req *http.Request) {
		req.Host = "chat.example.test"
		req.Header.Set("X-Forwarded-Proto", "https")
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `const wsURL = "wss" + "://"`)
}

func TestClientEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name         string
		host         string
		cfg          config.Config
		wantBase     string
		wantProtocol string
	}{
		{name: "request host", host: "example.test", wantBase: "example.test", wantProtocol: "ws"},
		{name: "configured base url", cfg: config.Config{BaseURL: "https://chat.example.test"}, wantBase: "chat.example.test", wantProtocol: "wss"},
		{name: "fallback", wantBase: fallbackBaseURL, wantProtocol: "ws"},
		{name: "configured protocol wins", host: "example.test", cfg: config.Config{WSProtocol: "wss"}, wantBase: "example.test", wantProtocol: "wss"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/chat", nil)
			c.Request.Host = tc.host

			base, protocol := clientEndpoint(c, tc.cfg)
			assert.Equal(t, tc.wantBase, base)
			assert.Equal(t, tc.wantProtocol, protocol)
		})
	}
}

func TestChatPageFromStaticDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, chatPage), []byte(`<p>{{.WSProtocol}}://{{.BaseURL}}</p>`), 0o600))

	cfg := testConfig()
	cfg.StaticDir = dir
	r, _ := newTestRouter(t, cfg)

	w := get(r, "/chat", func(req *http.Request) { req.Host = "override.test" })
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<p>ws://override.test</p>", w.Body.String())
}

func TestMetricsRoute(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := get(r, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chathub_hub_subscribers")
}

func TestHTTPRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.HTTPRateLimit = 2
	r, _ := newTestRouter(t, cfg)

	assert.Equal(t, http.StatusOK, get(r, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, get(r, "/healthz", nil).Code)
	w := get(r, "/healthz", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "Too many requests"))
}

func TestWebSocketRoute(t *testing.T) {
	r, room := newTestRouter(t, testConfig())
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	earlier, err := types.NewChatMessage("user_abcdef", "from before", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, room.History.Save(context.Background(), earlier))

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var replayed, welcome types.ChatMessage
	require.NoError(t, conn.ReadJSON(&replayed))
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, earlier.ID, replayed.ID)
	assert.Equal(t, chatroom.WelcomeBody, welcome.Body)
}

func TestHTTPRateLimitIgnoresForwardedFor(t *testing.T) {
	cfg := testConfig()
	cfg.HTTPRateLimit = 2
	r, _ := newTestRouter(t, cfg)

	spoof := func(ip string) func(*http.Request) {
		return func(req *http.Request) { req.Header.Set("X-Forwarded-For", ip) }
	}
	assert.Equal(t, http.StatusOK, get(r, "/healthz", spoof("10.0.0.1")).Code)
	assert.Equal(t, http.StatusOK, get(r, "/healthz", spoof("10.0.0.2")).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/healthz", spoof("10.0.0.3")).Code)
}

func TestTrustedProxyForwardedFor(t *testing.T) {
	cfg := testConfig()
	cfg.HTTPRateLimit = 1
	// httptest requests come from 192.0.2.1
	cfg.TrustedProxies = []string{"192.0.2.0/24"}
	r, _ := newTestRouter(t, cfg)

	via := func(ip string) func(*http.Request) {
		return func(req *http.Request) { req.Header.Set("X-Forwarded-For", ip) }
	}
	assert.Equal(t, http.StatusOK, get(r, "/healthz", via("10.0.0.1")).Code)
	assert.Equal(t, http.StatusOK, get(r, "/healthz", via("10.0.0.2")).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/healthz", via("10.0.0.2")).Code)
}
