package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/catmarket/internal/services/trading/domain"
	"github.com/louisbranch/catmarket/internal/services/trading/storage"
)

// InsertTrade records a completed trade.
func (t *txStore) InsertTrade(ctx context.Context, trade domain.Trade) error {
	if err := t.ready(ctx); err != nil {
		return err
	}
	if trade.ID == "" || trade.OfferID == "" {
		return fmt.Errorf("trade id and offer id are required")
	}
	_, err := t.q.ExecContext(ctx, `
INSERT INTO trades (
	id, offer_id, asset_id, buyer_id, seller_id, status, price_minor, currency,
	payment_provider, payment_reference, settled_at, created_at, completed_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID,
		trade.OfferID,
		trade.AssetID,
		trade.BuyerID,
		trade.SellerID,
		string(trade.Status),
		domain.ToMinorUnits(trade.Price),
		trade.Currency,
		trade.Payment.Provider,
		trade.Payment.Reference,
		toMillis(trade.Payment.SettledAt),
		toMillis(trade.CreatedAt),
		toMillis(trade.CompletedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetTradeByOffer returns the trade that completed offerID.
func (r *reader) GetTradeByOffer(ctx context.Context, offerID string) (domain.Trade, error) {
	if err := r.ready(ctx); err != nil {
		return domain.Trade{}, err
	}
	var (
		trade       domain.Trade
		status      string
		priceMinor  int64
		settledAt   int64
		createdAt   int64
		completedAt int64
	)
	err := r.q.QueryRowContext(ctx, `
SELECT id, offer_id, asset_id, buyer_id, seller_id, status, price_minor, currency,
       payment_provider, payment_reference, settled_at, created_at, completed_at
  FROM trades
 WHERE offer_id = ?`, strings.TrimSpace(offerID)).Scan(
		&trade.ID,
		&trade.OfferID,
		&trade.AssetID,
		&trade.BuyerID,
		&trade.SellerID,
		&status,
		&priceMinor,
		&trade.Currency,
		&trade.Payment.Provider,
		&trade.Payment.Reference,
		&settledAt,
		&createdAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Trade{}, storage.ErrNotFound
		}
		return domain.Trade{}, fmt.Errorf("get trade: %w", err)
	}
	trade.Status = domain.TradeStatus(status)
	trade.Price = domain.FromMinorUnits(priceMinor)
	trade.Payment.SettledAt = fromMillis(settledAt)
	trade.CreatedAt = fromMillis(createdAt)
	trade.CompletedAt = fromMillis(completedAt)
	return trade, nil
}

// AppendOwnershipRecord appends one ledger entry and returns it with its Seq.
func (t *txStore) AppendOwnershipRecord(ctx context.Context, record domain.OwnershipRecord) (domain.OwnershipRecord, error) {
	if err := t.ready(ctx); err != nil {
		return domain.OwnershipRecord{}, err
	}
	result, err := t.q.ExecContext(ctx, `
INSERT INTO ownership_records (asset_id, previous_owner_id, new_owner_id, reason, trade_id, recorded_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		record.AssetID,
		record.PreviousOwnerID,
		record.NewOwnerID,
		record.Reason,
		record.TradeID,
		toMillis(record.Timestamp),
	)
	if err != nil {
		return domain.OwnershipRecord{}, fmt.Errorf("append ownership record: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return domain.OwnershipRecord{}, fmt.Errorf("append ownership record id: %w", err)
	}
	record.Seq = seq
	record.Timestamp = fromMillis(toMillis(record.Timestamp))
	return record, nil
}

const ownershipColumns = `seq, asset_id, previous_owner_id, new_owner_id, reason, trade_id, recorded_at`

func scanOwnershipRecord(row rowScanner) (domain.OwnershipRecord, error) {
	var (
		record     domain.OwnershipRecord
		recordedAt int64
	)
	if err := row.Scan(
		&record.Seq,
		&record.AssetID,
		&record.PreviousOwnerID,
		&record.NewOwnerID,
		&record.Reason,
		&record.TradeID,
		&recordedAt,
	); err != nil {
		return domain.OwnershipRecord{}, err
	}
	record.Timestamp = fromMillis(recordedAt)
	return record, nil
}

// ListOwnershipRecords returns an asset's history in append order.
func (r *reader) ListOwnershipRecords(ctx context.Context, assetID string) ([]domain.OwnershipRecord, error) {
	if err := r.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+ownershipColumns+` FROM ownership_records WHERE asset_id = ? ORDER BY seq ASC`,
		strings.TrimSpace(assetID),
	)
	if err != nil {
		return nil, fmt.Errorf("list ownership records: %w", err)
	}
	defer rows.Close()

	var records []domain.OwnershipRecord
	for rows.Next() {
		record, err := scanOwnershipRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ownership record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ownership records: %w", err)
	}
	return records, nil
}

// LatestOwnershipRecord returns the newest entry for assetID.
func (r *reader) LatestOwnershipRecord(ctx context.Context, assetID string) (domain.OwnershipRecord, error) {
	if err := r.ready(ctx); err != nil {
		return domain.OwnershipRecord{}, err
	}
	record, err := scanOwnershipRecord(r.q.QueryRowContext(ctx,
		`SELECT `+ownershipColumns+` FROM ownership_records WHERE asset_id = ? ORDER BY seq DESC LIMIT 1`,
		strings.TrimSpace(assetID),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.OwnershipRecord{}, storage.ErrNotFound
		}
		return domain.OwnershipRecord{}, fmt.Errorf("latest ownership record: %w", err)
	}
	return record, nil
}

// InsertDeclination records a buyer's declination notice.
func (t *txStore) InsertDeclination(ctx context.Context, declination domain.Declination) error {
	if err := t.ready(ctx); err != nil {
		return err
	}
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO offer_declinations (id, offer_id, buyer_id, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		declination.ID,
		declination.OfferID,
		declination.BuyerID,
		declination.Reason,
		toMillis(declination.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert declination: %w", err)
	}
	return nil
}

// ListDeclinations returns the declination notices for offerID, oldest first.
func (r *reader) ListDeclinations(ctx context.Context, offerID string) ([]domain.Declination, error) {
	if err := r.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, offer_id, buyer_id, reason, created_at FROM offer_declinations WHERE offer_id = ? ORDER BY created_at ASC, id ASC`,
		strings.TrimSpace(offerID),
	)
	if err != nil {
		return nil, fmt.Errorf("list declinations: %w", err)
	}
	defer rows.Close()

	var declinations []domain.Declination
	for rows.Next() {
		var (
			declination domain.Declination
			createdAt   int64
		)
		if err := rows.Scan(&declination.ID, &declination.OfferID, &declination.BuyerID, &declination.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scan declination: %w", err)
		}
		declination.CreatedAt = fromMillis(createdAt)
		declinations = append(declinations, declination)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate declinations: %w", err)
	}
	return declinations, nil
}
