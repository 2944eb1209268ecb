// Package lock implements the exclusive asset lock held by a Pending offer.
//
// The lock is a column on the asset row changed only through conditional
// updates, so it is safe across goroutines and processes sharing the store.
package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/louisbranch/catmarket/internal/services/trading/domain"
	"github.com/louisbranch/catmarket/internal/services/trading/storage"
)

// Manager acquires and releases asset locks inside a caller's transaction.
type Manager struct {
	clock func() time.Time
}

// NewManager creates a lock manager.
func NewManager(clock func() time.Time) *Manager {
	if clock == nil {
		clock = time.Now
	}
	return &Manager{clock: clock}
}

// AcquireLock locks assetID for offerID. Acquiring a lock the offer already
// holds succeeds.
func (m *Manager) AcquireLock(ctx context.Context, tx storage.LockTx, assetID, offerID string) error {
	assetID = strings.TrimSpace(assetID)
	offerID = strings.TrimSpace(offerID)
	if assetID == "" || offerID == "" {
		return domain.ValidationError("asset id and offer id are required")
	}
	acquired, err := tx.AcquireAssetLock(ctx, assetID, offerID, m.now())
	if err != nil {
		return domain.InternalError("acquire asset lock", err)
	}
	if acquired {
		return nil
	}
	asset, err := m.asset(ctx, tx, assetID)
	if err != nil {
		return err
	}
	if asset.LockedBy(offerID) {
		return nil
	}
	return domain.AlreadyLockedError(assetID, asset.LockOfferID)
}

// ReleaseLock unlocks assetID if expectedOfferID holds it. Releasing an
// unlocked asset succeeds; releasing a lock held by another offer fails so a
// slow cancel cannot free a newer offer's lock.
func (m *Manager) ReleaseLock(ctx context.Context, tx storage.LockTx, assetID, expectedOfferID string) error {
	assetID = strings.TrimSpace(assetID)
	expectedOfferID = strings.TrimSpace(expectedOfferID)
	if assetID == "" || expectedOfferID == "" {
		return domain.ValidationError("asset id and offer id are required")
	}
	released, err := tx.ReleaseAssetLock(ctx, assetID, expectedOfferID, m.now())
	if err != nil {
		return domain.InternalError("release asset lock", err)
	}
	if released {
		return nil
	}
	asset, err := m.asset(ctx, tx, assetID)
	if err != nil {
		return err
	}
	if !asset.IsLocked() {
		return nil
	}
	return domain.AlreadyLockedError(assetID, asset.LockOfferID)
}

// LockState reads the current lock holder.
func (m *Manager) LockState(ctx context.Context, tx storage.LockTx, assetID string) (domain.LockState, error) {
	asset, err := m.asset(ctx, tx, strings.TrimSpace(assetID))
	if err != nil {
		return domain.LockState{}, err
	}
	return domain.LockState{AssetID: asset.ID, OfferID: asset.LockOfferID}, nil
}

func (m *Manager) asset(ctx context.Context, tx storage.LockTx, assetID string) (domain.Asset, error) {
	asset, err := tx.GetAsset(ctx, assetID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Asset{}, domain.NotFoundError("asset", assetID)
	}
	if err != nil {
		return domain.Asset{}, domain.InternalError("read asset lock", err)
	}
	return asset, nil
}

func (m *Manager) now() time.Time {
	return m.clock().UTC()
}
