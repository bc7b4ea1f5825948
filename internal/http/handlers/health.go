package handlers

import (
	"context"
	"net/http"
	"time"

	"backfeed/internal/http/middleware"

	"github.com/gin-gonic/gin"
)

// Pinger is the storage health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FeedCounter reports how many websocket subscribers are connected.
type FeedCounter interface {
	ClientCount() int
}

type probe struct {
	name string
	run  func(ctx context.Context) (ran bool, err error)
}

// HealthHandler serves /health, /healthz and /readyz.
type HealthHandler struct {
	probes  []probe
	feed    FeedCounter
	started time.Time
	version string
}

func NewHealthHandler(store Pinger, feed FeedCounter, version string) *HealthHandler {
	return &HealthHandler{
		probes: []probe{
			{name: "store", run: func(ctx context.Context) (bool, error) { return true, store.Ping(ctx) }},
			// skipped when no Redis client was configured
			{name: "redis", run: middleware.RedisPing},
		},
		feed:    feed,
		started: time.Now(),
		version: version,
	}
}

type HealthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version,omitempty"`
	Uptime      string            `json:"uptime,omitempty"`
	FeedClients int               `json:"feed_clients"`
	Checks      map[string]string `json:"checks,omitempty"`
}

// run executes every probe and reports whether all that ran succeeded.
func (h *HealthHandler) run(ctx context.Context) (map[string]string, bool) {
	checks := make(map[string]string, len(h.probes))
	ok := true
	for _, p := range h.probes {
		ran, err := p.run(ctx)
		switch {
		case !ran:
			continue
		case err != nil:
			checks[p.name] = "unhealthy: " + err.Error()
			ok = false
		default:
			checks[p.name] = "healthy"
		}
	}
	return checks, ok
}

func (h *HealthHandler) feedClients() int {
	if h.feed == nil {
		return 0
	}
	return h.feed.ClientCount()
}

// Liveness only reports that the process serves requests.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness runs every dependency probe.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks, ok := h.run(ctx)
	resp := HealthResponse{
		Status:      "healthy",
		Version:     h.version,
		Uptime:      time.Since(h.started).Round(time.Second).String(),
		FeedClients: h.feedClients(),
		Checks:      checks,
	}
	code := http.StatusOK
	if !ok {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

// Health checks the store only.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if _, err := h.probes[0].run(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": h.version})
}
