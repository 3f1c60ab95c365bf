package storage

import (
	"context"
	"time"

	"ringelect/pkg/ring"
)

// Storage defines the interface for the outcome store
type Storage interface {
	// SaveOutcome records the result of one election run.
	SaveOutcome(ctx context.Context, o Outcome) error
	// LastOutcome returns the most recent outcome saved for a participant.
	LastOutcome(ctx context.Context, participant ring.ID) (Outcome, bool, error)
	// ListOutcomes returns up to limit outcomes, newest first. limit <= 0
	// returns all of them.
	ListOutcomes(ctx context.Context, limit int) ([]Outcome, error)

	// Lifecycle
	Close() error
}

// Outcome is what one participant learned from one election run
type Outcome struct {
	RunID         string    `json:"run_id"`
	ParticipantID ring.ID   `json:"participant_id"`
	LeaderID      ring.ID   `json:"leader_id"`
	Winner        bool      `json:"winner"`
	Ticks         uint64    `json:"ticks"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Duration is how long the run took
func (o Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}
