// Package cooldown enforces the waiting period between a completed trade and
// the next listing of the same asset.
package cooldown

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/louisbranch/catmarket/internal/services/trading/domain"
	"github.com/louisbranch/catmarket/internal/services/trading/storage"
)

// AssetReader reads the completion time recorded on an asset.
type AssetReader interface {
	GetAsset(ctx context.Context, assetID string) (domain.Asset, error)
}

// Tracker records trade completions and answers cooldown queries.
type Tracker struct {
	assets   AssetReader
	duration time.Duration
}

// NewTracker creates a tracker with the given cooldown duration.
func NewTracker(assets AssetReader, duration time.Duration) *Tracker {
	if duration < 0 {
		duration = 0
	}
	return &Tracker{assets: assets, duration: duration}
}

// Duration returns the configured cooldown.
func (t *Tracker) Duration() time.Duration {
	return t.duration
}

// OnTradeCompleted records that assetID changed hands at at.
func (t *Tracker) OnTradeCompleted(ctx context.Context, tx storage.CooldownTx, assetID string, at time.Time) error {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return domain.ValidationError("asset id is required")
	}
	if err := tx.SetLastTradeCompletedAt(ctx, assetID, at.UTC()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.NotFoundError("asset", assetID)
		}
		return domain.InternalError("record trade completion", err)
	}
	return nil
}

// IsInCooldown reports whether assetID is still cooling down at now and when
// the cooldown ends.
func (t *Tracker) IsInCooldown(ctx context.Context, assetID string, now time.Time) (bool, time.Time, error) {
	asset, err := t.assets.GetAsset(ctx, strings.TrimSpace(assetID))
	if errors.Is(err, storage.ErrNotFound) {
		return false, time.Time{}, domain.NotFoundError("asset", assetID)
	}
	if err != nil {
		return false, time.Time{}, domain.InternalError("read asset cooldown", err)
	}
	active, until := t.Check(asset, now)
	return active, until, nil
}

// Check evaluates the cooldown for an asset already loaded, for example
// inside a write transaction. The asset is cooling down iff
// now < LastTradeCompletedAt + duration.
func (t *Tracker) Check(asset domain.Asset, now time.Time) (bool, time.Time) {
	if asset.LastTradeCompletedAt == nil {
		return false, time.Time{}
	}
	until := asset.LastTradeCompletedAt.Add(t.duration)
	return now.Before(until), until
}
