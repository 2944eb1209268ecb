package domain

import "time"

// Event is one outbox event leased from the trading service.
type Event struct {
	ID           string
	Type         string
	AggregateID  string
	PayloadJSON  string
	CreatedAt    time.Time
	AttemptCount int
}
