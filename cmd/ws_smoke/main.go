package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}
	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	base := "http://127.0.0.1:" + port + "/api/v1"

	post := func(path string, body any) map[string]any {
		b, _ := json.Marshal(body)
		res, err := http.Post(base+path, "application/json", bytes.NewReader(b))
		if err != nil {
			log.Fatalf("POST %s: %v", path, err)
		}
		defer res.Body.Close()
		var out map[string]any
		_ = json.NewDecoder(res.Body).Decode(&out)
		if res.StatusCode != http.StatusCreated {
			log.Fatalf("POST %s: status %d: %v", path, res.StatusCode, out)
		}
		return out
	}

	contributor := post("/users", map[string]any{})
	evaluator := post("/users", map[string]any{"reputation": 60})
	contribution := post("/contributions", map[string]any{"user_id": contributor["id"]})
	cid := int64(contribution["id"].(float64))

	wsURL := fmt.Sprintf("ws://127.0.0.1:%s/ws?contribution_id=%d", port, cid)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// wait for ready handshake
	readType := func(want string) []byte {
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				continue
			}
			var obj map[string]any
			_ = json.Unmarshal(msg, &obj)
			if t, ok := obj["type"].(string); ok && t == want {
				return msg
			}
		}
		log.Fatalf("no %s message within deadline", want)
		return nil
	}
	readType("ready")

	receipt := post(fmt.Sprintf("/contributions/%d/evaluations", cid), map[string]any{"user_id": evaluator["id"], "value": 1})
	log.Printf("evaluation receipt: fee=%v contributor_token_reward=%v max_score=%v",
		receipt["fee"], receipt["contributor_token_reward"], receipt["max_score"])

	msg := readType("evaluation")
	log.Printf("feed got: %s", string(msg))
	log.Println("smoke test finished")
}
