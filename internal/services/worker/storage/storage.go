// Package storage defines the worker's delivery attempt history.
package storage

import (
	"context"
	"time"
)

// AttemptRecord is one webhook delivery outcome.
type AttemptRecord struct {
	ID           int64
	EventID      string
	EventType    string
	Consumer     string
	Outcome      string
	AttemptCount int
	LastError    string
	// NextAttemptAt is set for retry outcomes.
	NextAttemptAt *time.Time
	CreatedAt     time.Time
}

// AttemptStore persists delivery attempts for inspection.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt AttemptRecord) error
	ListAttempts(ctx context.Context, limit int) ([]AttemptRecord, error)
	ListEventAttempts(ctx context.Context, eventID string) ([]AttemptRecord, error)
}
