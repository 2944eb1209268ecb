package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/catmarket/internal/services/trading/domain"
	"github.com/louisbranch/catmarket/internal/services/trading/storage"
)

// EnqueueEvent writes an event to the outbox inside the caller's transaction.
func (t *txStore) EnqueueEvent(ctx context.Context, event domain.Event) error {
	if err := t.ready(ctx); err != nil {
		return err
	}
	if event.ID == "" || event.Type == "" {
		return fmt.Errorf("event id and type are required")
	}
	at := toMillis(event.CreatedAt)
	_, err := t.q.ExecContext(ctx, `
INSERT INTO trade_events (id, event_type, aggregate_id, payload_json, status, attempt_count, next_attempt_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		event.ID,
		string(event.Type),
		event.AggregateID,
		event.PayloadJSON,
		storage.OutboxPending,
		at,
		at,
		at,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("enqueue event: %w", err)
	}
	return nil
}

const outboxColumns = `id, event_type, aggregate_id, payload_json, status, attempt_count, next_attempt_at,
       lease_owner, lease_expires_at, last_error, created_at, updated_at`

func scanOutboxEvent(row rowScanner) (storage.OutboxEvent, error) {
	var (
		event         storage.OutboxEvent
		eventType     string
		nextAttemptAt int64
		leaseOwner    sql.NullString
		leaseExpires  sql.NullInt64
		createdAt     int64
		updatedAt     int64
	)
	if err := row.Scan(
		&event.ID,
		&eventType,
		&event.AggregateID,
		&event.PayloadJSON,
		&event.Status,
		&event.AttemptCount,
		&nextAttemptAt,
		&leaseOwner,
		&leaseExpires,
		&event.LastError,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.OutboxEvent{}, err
	}
	event.Type = domain.EventType(eventType)
	event.NextAttemptAt = fromMillis(nextAttemptAt)
	event.LeaseOwner = leaseOwner.String
	event.LeaseExpiresAt = fromNullMillis(leaseExpires)
	event.CreatedAt = fromMillis(createdAt)
	event.UpdatedAt = fromMillis(updatedAt)
	return event, nil
}

// LeaseEvents claims due pending events whose lease is free or expired.
func (s *Store) LeaseEvents(ctx context.Context, consumer string, limit int, ttl time.Duration, now time.Time) ([]storage.OutboxEvent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return nil, fmt.Errorf("consumer is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("lease ttl must be greater than zero")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin lease events: %w", err)
	}
	rollbackWith := func(cause error) ([]storage.OutboxEvent, error) {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return nil, fmt.Errorf("%w: rollback lease events: %v", cause, rollbackErr)
		}
		return nil, cause
	}

	nowMillis := toMillis(now)
	rows, err := tx.QueryContext(ctx, `SELECT `+outboxColumns+`
  FROM trade_events
 WHERE status = ? AND next_attempt_at <= ?
   AND (lease_expires_at IS NULL OR lease_expires_at <= ?)
 ORDER BY created_at ASC, id ASC
 LIMIT ?`, storage.OutboxPending, nowMillis, nowMillis, limit)
	if err != nil {
		return rollbackWith(fmt.Errorf("select due events: %w", err))
	}
	var events []storage.OutboxEvent
	for rows.Next() {
		event, err := scanOutboxEvent(rows)
		if err != nil {
			_ = rows.Close()
			return rollbackWith(fmt.Errorf("scan due event: %w", err))
		}
		events = append(events, event)
	}
	if err := rows.Close(); err != nil {
		return rollbackWith(fmt.Errorf("close due events: %w", err))
	}
	if err := rows.Err(); err != nil {
		return rollbackWith(fmt.Errorf("iterate due events: %w", err))
	}

	leaseExpires := now.Add(ttl).UTC()
	for i := range events {
		if _, err := tx.ExecContext(ctx,
			`UPDATE trade_events SET lease_owner = ?, lease_expires_at = ?, updated_at = ? WHERE id = ?`,
			consumer, toMillis(leaseExpires), nowMillis, events[i].ID,
		); err != nil {
			return rollbackWith(fmt.Errorf("lease event %s: %w", events[i].ID, err))
		}
		events[i].LeaseOwner = consumer
		events[i].LeaseExpiresAt = &leaseExpires
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lease events: %w", err)
	}
	return events, nil
}

// AckEvent settles a lease. Succeeded marks the event delivered, retry
// reschedules it, dead parks it for inspection.
func (s *Store) AckEvent(ctx context.Context, input storage.AckInput) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	input.EventID = strings.TrimSpace(input.EventID)
	input.Consumer = strings.TrimSpace(input.Consumer)
	if input.EventID == "" || input.Consumer == "" {
		return fmt.Errorf("event id and consumer are required")
	}
	var (
		status        string
		nextAttemptAt = input.At
	)
	switch input.Outcome {
	case storage.AckSucceeded:
		status = storage.OutboxDelivered
	case storage.AckRetry:
		status = storage.OutboxPending
		if !input.NextAttemptAt.IsZero() {
			nextAttemptAt = input.NextAttemptAt
		}
	case storage.AckDead:
		status = storage.OutboxDead
	default:
		return fmt.Errorf("ack outcome %q is not supported", input.Outcome)
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE trade_events
   SET status = ?,
       attempt_count = attempt_count + 1,
       next_attempt_at = ?,
       last_error = ?,
       lease_owner = NULL,
       lease_expires_at = NULL,
       updated_at = ?
 WHERE id = ? AND status = ? AND lease_owner = ?`,
		status,
		toMillis(nextAttemptAt),
		strings.TrimSpace(input.LastError),
		toMillis(input.At),
		input.EventID,
		storage.OutboxPending,
		input.Consumer,
	)
	if err != nil {
		return fmt.Errorf("ack event: %w", err)
	}
	changed, err := rowsChanged(result, "ack event")
	if err != nil {
		return err
	}
	if changed {
		return nil
	}
	if _, err := s.GetOutboxEvent(ctx, input.EventID); err != nil {
		return err
	}
	return storage.ErrPreconditionFailed
}

// GetOutboxEvent returns one outbox event by ID.
func (s *Store) GetOutboxEvent(ctx context.Context, eventID string) (storage.OutboxEvent, error) {
	if err := s.ready(ctx); err != nil {
		return storage.OutboxEvent{}, err
	}
	event, err := scanOutboxEvent(s.sqlDB.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM trade_events WHERE id = ?`, strings.TrimSpace(eventID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OutboxEvent{}, storage.ErrNotFound
		}
		return storage.OutboxEvent{}, fmt.Errorf("get outbox event: %w", err)
	}
	return event, nil
}
