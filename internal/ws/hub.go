package ws

import (
	"context"
	"encoding/json"
	"sync"

	"backfeed/internal/logger"
	"backfeed/internal/service"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	FeedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_feed_clients",
		Help: "Connected evaluation feed clients",
	})
	FeedDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ws_feed_dropped_total",
		Help: "Feed messages dropped because the hub or a client buffer was full",
	})
)

func init() {
	prometheus.MustRegister(FeedClients)
	prometheus.MustRegister(FeedDropped)
}

type broadcast struct {
	contributionID int64
	msg            []byte
}

// Hub fans committed evaluation events out to connected clients. It
// implements service.EventPublisher.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	events chan broadcast
}

var _ service.EventPublisher = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		events:  make(chan broadcast, 256),
	}
}

// Publish queues an event without blocking; it is dropped when the queue is full.
func (h *Hub) Publish(ev service.EvaluationEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Error("ws: marshal event", "error", err)
		return
	}
	msg, _ := json.Marshal(Envelope{Type: MsgEvaluation, Payload: payload})

	select {
	case h.events <- broadcast{contributionID: ev.ContributionID, msg: msg}:
	default:
		FeedDropped.Inc()
	}
}

// Run delivers queued events until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case b := <-h.events:
			h.deliver(b)
		}
	}
}

func (h *Hub) deliver(b broadcast) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(b.contributionID) {
			continue
		}
		if !c.enqueue(b.msg) {
			FeedDropped.Inc()
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	FeedClients.Set(float64(n))
	logger.Debug("ws: client connected", "remote", c.remote, "clients", n)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.closeSend()
	}
	n := len(h.clients)
	h.mu.Unlock()
	FeedClients.Set(float64(n))
	logger.Debug("ws: client disconnected", "remote", c.remote, "clients", n)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.closeSend()
	}
	FeedClients.Set(0)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
