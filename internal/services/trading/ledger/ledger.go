// Package ledger records the append-only ownership history of assets.
package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/louisbranch/catmarket/internal/services/trading/domain"
	"github.com/louisbranch/catmarket/internal/services/trading/storage"
)

// HistoryReader reads stored ownership records.
type HistoryReader interface {
	ListOwnershipRecords(ctx context.Context, assetID string) ([]domain.OwnershipRecord, error)
	LatestOwnershipRecord(ctx context.Context, assetID string) (domain.OwnershipRecord, error)
}

// Ledger validates and appends ownership records. It has no update or delete
// path; the SQLite schema also rejects both.
type Ledger struct {
	history HistoryReader
}

// New creates a ledger reading history from history.
func New(history HistoryReader) *Ledger {
	return &Ledger{history: history}
}

// Append validates record and appends it inside tx.
func (l *Ledger) Append(ctx context.Context, tx storage.LedgerTx, record domain.OwnershipRecord) (domain.OwnershipRecord, error) {
	record.AssetID = strings.TrimSpace(record.AssetID)
	record.NewOwnerID = strings.TrimSpace(record.NewOwnerID)
	record.PreviousOwnerID = strings.TrimSpace(record.PreviousOwnerID)
	record.Timestamp = record.Timestamp.UTC()
	if err := record.Validate(); err != nil {
		return domain.OwnershipRecord{}, err
	}
	stored, err := tx.AppendOwnershipRecord(ctx, record)
	if err != nil {
		return domain.OwnershipRecord{}, domain.InternalError("append ownership record", err)
	}
	return stored, nil
}

// History returns every record for assetID in append order.
func (l *Ledger) History(ctx context.Context, assetID string) ([]domain.OwnershipRecord, error) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return nil, domain.ValidationError("asset id is required")
	}
	records, err := l.history.ListOwnershipRecords(ctx, assetID)
	if err != nil {
		return nil, domain.InternalError("list ownership history", err)
	}
	return records, nil
}

// Latest returns the newest record for assetID.
func (l *Ledger) Latest(ctx context.Context, assetID string) (domain.OwnershipRecord, error) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return domain.OwnershipRecord{}, domain.ValidationError("asset id is required")
	}
	record, err := l.history.LatestOwnershipRecord(ctx, assetID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.OwnershipRecord{}, domain.NotFoundError("ownership record", assetID)
	}
	if err != nil {
		return domain.OwnershipRecord{}, domain.InternalError("read latest ownership record", err)
	}
	return record, nil
}
