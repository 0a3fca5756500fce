package main

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"chathub/chatroom"
	"chathub/config"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	chatPage        = "chat.html"
	fallbackBaseURL = "localhost:5000"
)

//go:embed static/chat.html
var staticFiles embed.FS

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func rateLimitErrorHandler(c *gin.Context, info ratelimit.Info) {
	c.String(http.StatusTooManyRequests, "Too many requests. Try again in "+time.Until(info.ResetTime).String())
}

// requestLogger logs one line per request once the handler chain returns.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Debug("HTTP request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", path,
			"latency", time.Since(start),
			"remote_ip", c.ClientIP(),
		)
	}
}

func newRouter(cfg config.Config, room *chatroom.ChatRoom, logger *slog.Logger) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{Rate: time.Second, Limit: cfg.HTTPRateLimit})
	r.Use(ratelimit.RateLimiter(store, &ratelimit.Options{ErrorHandler: rateLimitErrorHandler, KeyFunc: keyFunc}))
	r.Use(cors.Default())

	if cfg.StaticDir != "" {
		r.LoadHTMLFiles(filepath.Join(cfg.StaticDir, chatPage))
	} else {
		tmpl, err := template.ParseFS(staticFiles, "static/"+chatPage)
		if err != nil {
			return nil, err
		}
		r.SetHTMLTemplate(tmpl)
	}

	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusPermanentRedirect, "/chat")
	})
	r.GET("/chat", func(c *gin.Context) {
		baseURL, wsProtocol := clientEndpoint(c, cfg)
		c.HTML(http.StatusOK, chatPage, gin.H{
			"BaseURL":    baseURL,
			"WSProtocol": wsProtocol,
		})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, "OK")
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ws", room.HandleSocket)

	return r, nil
}

// clientEndpoint picks the host and websocket scheme the served page
// connects back to. The request's Host header wins over BASE_URL.
func clientEndpoint(c *gin.Context, cfg config.Config) (baseURL, wsProtocol string) {
	baseURL = c.Request.Host
	if baseURL == "" {
		baseURL = cfg.BaseURL
	}
	if baseURL == "" {
		baseURL = fallbackBaseURL
	}

	switch {
	case cfg.WSProtocol != "":
		wsProtocol = cfg.WSProtocol
	case c.Request.TLS != nil,
		strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https"),
		strings.HasPrefix(baseURL, "https"):
		wsProtocol = "wss"
	default:
		wsProtocol = "ws"
	}

	baseURL = strings.TrimPrefix(strings.TrimPrefix(baseURL, "https://"), "http://")
	return baseURL, wsProtocol
}
