// Package httpapi exposes the ingestion webhook, health and metrics over HTTP.
package httpapi

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/ingestion"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/observability"
)

// DefaultMaxBodyBytes caps a delivered batch.
const DefaultMaxBodyBytes = 4 << 20

// Processor handles one delivered payload.
type Processor interface {
	Process(ctx context.Context, payload []byte) (ingestion.Stats, bool)
}

// Options for the HTTP handler.
type Options struct {
	Processor    Processor
	Metrics      *observability.Metrics // nil disables /metrics
	WebhookPath  string
	MaxBodyBytes int64
	Logger       *zap.Logger
	Debug        bool
}

// WebhookHandler acknowledges every delivery and forwards it for processing.
type WebhookHandler struct {
	Processor    Processor
	MaxBodyBytes int64
	Logger       *zap.Logger
}

// Register mounts the handler at path.
func (h *WebhookHandler) Register(r *gin.Engine, path string) {
	r.POST(path, h.receive)
}

// receive always answers 200. Processing failures are logged, never reported.
func (h *WebhookHandler) receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, h.MaxBodyBytes+1))
	if err != nil {
		h.Logger.Warn("failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}
	if int64(len(body)) > h.MaxBodyBytes {
		h.Logger.Warn("webhook body too large, dropped", zap.Int64("limit", h.MaxBodyBytes))
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	// A producer disconnect must not abort appends already under way.
	h.Processor.Process(context.WithoutCancel(c.Request.Context()), body)
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// HealthHandler serves liveness.
type HealthHandler struct{}

// Register mounts /healthz.
func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
}

func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// NewRouter builds the gin engine with all routes.
func NewRouter(opts Options) *gin.Engine {
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	path := opts.WebhookPath
	if path == "" {
		path = "/webhook"
	}
	limit := opts.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	webhook := &WebhookHandler{Processor: opts.Processor, MaxBodyBytes: limit, Logger: logger}
	webhook.Register(engine, path)
	(&HealthHandler{}).Register(engine)
	if opts.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}
	return engine
}
