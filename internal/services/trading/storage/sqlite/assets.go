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

// reader runs read queries against a pool or an open transaction.
type reader struct {
	q queryer
}

func (r *reader) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r == nil || r.q == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

const assetColumns = `id, owner_id, name, level, lock_offer_id, last_trade_completed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (domain.Asset, error) {
	var (
		asset     domain.Asset
		lockOffer sql.NullString
		lastTrade sql.NullInt64
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(
		&asset.ID,
		&asset.OwnerID,
		&asset.Name,
		&asset.Level,
		&lockOffer,
		&lastTrade,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Asset{}, err
	}
	asset.LockOfferID = lockOffer.String
	asset.LastTradeCompletedAt = fromNullMillis(lastTrade)
	asset.CreatedAt = fromMillis(createdAt)
	asset.UpdatedAt = fromMillis(updatedAt)
	return asset, nil
}

// GetAsset returns one asset by ID.
func (r *reader) GetAsset(ctx context.Context, assetID string) (domain.Asset, error) {
	if err := r.ready(ctx); err != nil {
		return domain.Asset{}, err
	}
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return domain.Asset{}, fmt.Errorf("asset id is required")
	}
	asset, err := scanAsset(r.q.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, assetID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Asset{}, storage.ErrNotFound
		}
		return domain.Asset{}, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

// CountAssetsByOwner returns how many assets ownerID holds.
func (r *reader) CountAssetsByOwner(ctx context.Context, ownerID string) (int, error) {
	if err := r.ready(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets WHERE owner_id = ?`, strings.TrimSpace(ownerID)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count assets by owner: %w", err)
	}
	return count, nil
}

// PutAsset inserts or updates directory-owned asset attributes. Trading-owned
// columns (lock, last trade time) are left untouched on update; owner changes
// are only accepted while the asset is unlocked.
func (s *Store) PutAsset(ctx context.Context, asset domain.Asset) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	asset.ID = strings.TrimSpace(asset.ID)
	asset.OwnerID = strings.TrimSpace(asset.OwnerID)
	asset.Name = strings.TrimSpace(asset.Name)
	if asset.ID == "" {
		return fmt.Errorf("asset id is required")
	}
	if asset.OwnerID == "" {
		return fmt.Errorf("asset owner id is required")
	}
	if asset.Level < 0 {
		return fmt.Errorf("asset level must not be negative")
	}
	now := time.Now().UTC()
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = now
	}
	if asset.UpdatedAt.IsZero() {
		asset.UpdatedAt = now
	}

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO assets (id, owner_id, name, level, lock_offer_id, last_trade_completed_at, created_at, updated_at)
VALUES (?, ?, ?, ?, NULL, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	owner_id = excluded.owner_id,
	name = excluded.name,
	level = excluded.level,
	updated_at = excluded.updated_at
WHERE assets.lock_offer_id IS NULL OR assets.owner_id = excluded.owner_id
`,
		asset.ID,
		asset.OwnerID,
		asset.Name,
		asset.Level,
		nullMillis(asset.LastTradeCompletedAt),
		toMillis(asset.CreatedAt),
		toMillis(asset.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put asset: %w", err)
	}
	changed, err := rowsChanged(result, "put asset")
	if err != nil {
		return err
	}
	if !changed {
		return storage.ErrPreconditionFailed
	}
	return nil
}

// AcquireAssetLock locks an unlocked asset for offerID.
func (t *txStore) AcquireAssetLock(ctx context.Context, assetID, offerID string, at time.Time) (bool, error) {
	if err := t.ready(ctx); err != nil {
		return false, err
	}
	result, err := t.q.ExecContext(ctx,
		`UPDATE assets SET lock_offer_id = ?, updated_at = ? WHERE id = ? AND lock_offer_id IS NULL`,
		offerID, toMillis(at), assetID,
	)
	if err != nil {
		return false, fmt.Errorf("acquire asset lock: %w", err)
	}
	return rowsChanged(result, "acquire asset lock")
}

// ReleaseAssetLock unlocks an asset held by offerID.
func (t *txStore) ReleaseAssetLock(ctx context.Context, assetID, offerID string, at time.Time) (bool, error) {
	if err := t.ready(ctx); err != nil {
		return false, err
	}
	result, err := t.q.ExecContext(ctx,
		`UPDATE assets SET lock_offer_id = NULL, updated_at = ? WHERE id = ? AND lock_offer_id = ?`,
		toMillis(at), assetID, offerID,
	)
	if err != nil {
		return false, fmt.Errorf("release asset lock: %w", err)
	}
	return rowsChanged(result, "release asset lock")
}

// SetLastTradeCompletedAt records when the asset last changed hands.
func (t *txStore) SetLastTradeCompletedAt(ctx context.Context, assetID string, at time.Time) error {
	if err := t.ready(ctx); err != nil {
		return err
	}
	result, err := t.q.ExecContext(ctx,
		`UPDATE assets SET last_trade_completed_at = ?, updated_at = ? WHERE id = ?`,
		toMillis(at), toMillis(at), assetID,
	)
	if err != nil {
		return fmt.Errorf("set last trade completed at: %w", err)
	}
	changed, err := rowsChanged(result, "set last trade completed at")
	if err != nil {
		return err
	}
	if !changed {
		return storage.ErrNotFound
	}
	return nil
}

// TransferOwnership moves the asset to its buyer and clears the lock.
func (t *txStore) TransferOwnership(ctx context.Context, transfer storage.OwnershipTransfer) error {
	if err := t.ready(ctx); err != nil {
		return err
	}
	result, err := t.q.ExecContext(ctx, `
UPDATE assets
   SET owner_id = ?, lock_offer_id = NULL, last_trade_completed_at = ?, updated_at = ?
 WHERE id = ? AND owner_id = ? AND lock_offer_id = ?`,
		transfer.ToOwnerID,
		toMillis(transfer.At),
		toMillis(transfer.At),
		transfer.AssetID,
		transfer.FromOwnerID,
		transfer.OfferID,
	)
	if err != nil {
		return fmt.Errorf("transfer ownership: %w", err)
	}
	changed, err := rowsChanged(result, "transfer ownership")
	if err != nil {
		return err
	}
	if !changed {
		return storage.ErrPreconditionFailed
	}
	return nil
}
