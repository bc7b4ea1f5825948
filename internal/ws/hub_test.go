package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backfeed/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func startFeed(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", HandleWS(hub, ""))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	expect(t, conn, MsgReady)
	return conn
}

func expect(t *testing.T, conn *websocket.Conn, typ string) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read %s: %v", typ, err)
	}
	if env.Type != typ {
		t.Fatalf("expected %s, got %s (%s)", typ, env.Type, env.Payload)
	}
	return env
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFeedDeliversEvents(t *testing.T) {
	hub, url := startFeed(t)
	conn := dial(t, url)
	waitClients(t, hub, 1)

	hub.Publish(service.EvaluationEvent{EvaluationID: 7, ContributionID: 3, Value: 1, Fee: 0.5})

	env := expect(t, conn, MsgEvaluation)
	var ev service.EvaluationEvent
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if ev.EvaluationID != 7 || ev.ContributionID != 3 || ev.Fee != 0.5 {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestFeedSubscriptionFilter(t *testing.T) {
	hub, url := startFeed(t)
	conn := dial(t, url)
	waitClients(t, hub, 1)

	if err := conn.WriteJSON(map[string]any{"type": MsgSubscribe, "payload": map[string]any{"contribution_id": 2}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	expect(t, conn, MsgSubscribe)

	hub.Publish(service.EvaluationEvent{EvaluationID: 1, ContributionID: 1})
	hub.Publish(service.EvaluationEvent{EvaluationID: 2, ContributionID: 2})

	env := expect(t, conn, MsgEvaluation)
	var ev service.EvaluationEvent
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if ev.EvaluationID != 2 {
		t.Fatalf("expected only contribution 2 events, got evaluation %d", ev.EvaluationID)
	}
}

func TestFeedPingAndErrors(t *testing.T) {
	_, url := startFeed(t)
	conn := dial(t, url)

	if err := conn.WriteJSON(Envelope{Type: MsgPing}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	expect(t, conn, MsgPong)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	expect(t, conn, MsgError)

	if err := conn.WriteJSON(Envelope{Type: "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	expect(t, conn, MsgError)
}

func TestFeedUnregistersOnClose(t *testing.T) {
	hub, url := startFeed(t)
	conn := dial(t, url)
	waitClients(t, hub, 1)

	conn.Close()
	waitClients(t, hub, 0)
}
