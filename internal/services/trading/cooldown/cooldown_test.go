package cooldown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/catmarket/internal/services/trading/domain"
	"github.com/louisbranch/catmarket/internal/services/trading/storage"
)

type fakeAssets map[string]domain.Asset

func (f fakeAssets) GetAsset(_ context.Context, assetID string) (domain.Asset, error) {
	asset, ok := f[assetID]
	if !ok {
		return domain.Asset{}, storage.ErrNotFound
	}
	return asset, nil
}

func (f fakeAssets) SetLastTradeCompletedAt(_ context.Context, assetID string, at time.Time) error {
	asset, ok := f[assetID]
	if !ok {
		return storage.ErrNotFound
	}
	asset.LastTradeCompletedAt = &at
	f[assetID] = asset
	return nil
}

func TestCooldownBoundary(t *testing.T) {
	completed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assets := fakeAssets{"cat-1": {ID: "cat-1"}}
	tracker := NewTracker(assets, 24*time.Hour)
	ctx := context.Background()

	if err := tracker.OnTradeCompleted(ctx, assets, "cat-1", completed); err != nil {
		t.Fatalf("record completion: %v", err)
	}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"right after trade", completed, true},
		{"one nanosecond before end", completed.Add(24*time.Hour - time.Nanosecond), true},
		{"exactly at end", completed.Add(24 * time.Hour), false},
		{"after end", completed.Add(25 * time.Hour), false},
	}
	for _, tc := range tests {
		active, until, err := tracker.IsInCooldown(ctx, "cat-1", tc.now)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if active != tc.want {
			t.Fatalf("%s: active = %v, want %v", tc.name, active, tc.want)
		}
		if !until.Equal(completed.Add(24 * time.Hour)) {
			t.Fatalf("%s: until = %v", tc.name, until)
		}
	}
}

func TestNeverTradedAssetIsNotCoolingDown(t *testing.T) {
	tracker := NewTracker(fakeAssets{"cat-1": {ID: "cat-1"}}, time.Hour)
	active, until, err := tracker.IsInCooldown(context.Background(), "cat-1", time.Now())
	if err != nil || active || !until.IsZero() {
		t.Fatalf("IsInCooldown = %v, %v, %v", active, until, err)
	}
}

func TestCooldownUnknownAsset(t *testing.T) {
	assets := fakeAssets{}
	tracker := NewTracker(assets, time.Hour)
	if _, _, err := tracker.IsInCooldown(context.Background(), "nope", time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("IsInCooldown = %v", err)
	}
	if err := tracker.OnTradeCompleted(context.Background(), assets, "nope", time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("OnTradeCompleted = %v", err)
	}
}
