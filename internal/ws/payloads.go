package ws

import "encoding/json"

// Envelope frames every message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// client → server
type SubscribePayload struct {
	// ContributionID narrows the feed to one contribution; 0 receives all.
	ContributionID int64 `json:"contribution_id"`
}

// server → client
type ErrorPayload struct {
	Message string `json:"message"`
}
