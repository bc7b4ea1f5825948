package service

import "time"

// EvaluationEvent is published after an evaluation has been committed.
type EvaluationEvent struct {
	EvaluationID          int64     `json:"evaluation_id"`
	ContributionID        int64     `json:"contribution_id"`
	ContributionType      string    `json:"contribution_type"`
	EvaluatorID           int64     `json:"evaluator_id"`
	Value                 int       `json:"value"`
	Revote                bool      `json:"revote"`
	Fee                   float64   `json:"fee"`
	MaxScore              float64   `json:"max_score"`
	ContributorTokens     float64   `json:"contributor_tokens_reward"`
	ContributorReputation float64   `json:"contributor_reputation_reward"`
	At                    time.Time `json:"at"`
}

// EventPublisher receives committed evaluation events. Publish must not block.
type EventPublisher interface {
	Publish(ev EvaluationEvent)
}
