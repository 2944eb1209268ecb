package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/catmarket/internal/services/trading/domain"
	"github.com/louisbranch/catmarket/internal/services/trading/ledger"
	"github.com/louisbranch/catmarket/internal/services/trading/storage"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Store is the trading storage a seed run writes through.
type Store interface {
	storage.AssetDirectory
	ledger.HistoryReader
	WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error
}

// Wallets tops up credit balances.
type Wallets interface {
	Balance(ctx context.Context, ownerID, currency string) (decimal.Decimal, error)
	Deposit(ctx context.Context, ownerID, currency string, amount decimal.Decimal) error
}

// Result counts what a run changed.
type Result struct {
	AssetsCreated  int
	AssetsUpdated  int
	GenesisRecords int
	WalletsFunded  int
}

// Runner applies manifests. Runs are idempotent: existing owners are kept,
// genesis records are written once, and wallets are only topped up.
type Runner struct {
	store   Store
	wallets Wallets
	ledger  *ledger.Ledger
	clock   func() time.Time
	log     zerolog.Logger
}

// NewRunner builds a runner. wallets may be nil when the manifest has none.
func NewRunner(store Store, wallets Wallets, clock func() time.Time, logger zerolog.Logger) *Runner {
	if clock == nil {
		clock = time.Now
	}
	return &Runner{store: store, wallets: wallets, ledger: ledger.New(store), clock: clock, log: logger}
}

// Apply ensures every manifest record exists.
func (r *Runner) Apply(ctx context.Context, m Manifest) (Result, error) {
	if err := m.Validate(); err != nil {
		return Result{}, err
	}
	if len(m.Wallets) > 0 && r.wallets == nil {
		return Result{}, errors.New("manifest has wallets but no wallet store is configured")
	}
	var result Result
	for _, asset := range m.Assets {
		if err := r.applyAsset(ctx, asset, &result); err != nil {
			return result, fmt.Errorf("seed asset %q: %w", asset.ID, err)
		}
	}
	for _, wallet := range m.Wallets {
		funded, err := r.applyWallet(ctx, wallet)
		if err != nil {
			return result, fmt.Errorf("seed wallet %q: %w", wallet.Owner, err)
		}
		if funded {
			result.WalletsFunded++
		}
	}
	r.log.Info().
		Str("manifest", m.Name).
		Int("assets_created", result.AssetsCreated).
		Int("assets_updated", result.AssetsUpdated).
		Int("genesis_records", result.GenesisRecords).
		Int("wallets_funded", result.WalletsFunded).
		Msg("seed applied")
	return result, nil
}

func (r *Runner) applyAsset(ctx context.Context, entry ManifestAsset, result *Result) error {
	now := r.clock().UTC()
	asset := domain.Asset{
		ID:        strings.TrimSpace(entry.ID),
		OwnerID:   strings.TrimSpace(entry.Owner),
		Name:      strings.TrimSpace(entry.Name),
		Level:     entry.Level,
		CreatedAt: now,
		UpdatedAt: now,
	}
	existing, err := r.store.GetAsset(ctx, asset.ID)
	switch {
	case err == nil:
		// Trades may have moved the cat since it was first seeded.
		asset.OwnerID = existing.OwnerID
		asset.CreatedAt = existing.CreatedAt
		result.AssetsUpdated++
	case errors.Is(err, storage.ErrNotFound):
		result.AssetsCreated++
	default:
		return err
	}
	if err := r.store.PutAsset(ctx, asset); err != nil {
		return err
	}

	_, err = r.ledger.Latest(ctx, asset.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	err = r.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := r.ledger.Append(ctx, tx, domain.OwnershipRecord{
			AssetID:    asset.ID,
			NewOwnerID: asset.OwnerID,
			Reason:     domain.OwnershipReasonGenesis,
			Timestamp:  now,
		})
		return err
	})
	if err != nil {
		return err
	}
	result.GenesisRecords++
	return nil
}

func (r *Runner) applyWallet(ctx context.Context, entry ManifestWallet) (bool, error) {
	currency, err := entry.currency()
	if err != nil {
		return false, err
	}
	target, err := entry.balance()
	if err != nil {
		return false, err
	}
	owner := strings.TrimSpace(entry.Owner)
	current, err := r.wallets.Balance(ctx, owner, currency)
	if err != nil {
		return false, err
	}
	if !current.LessThan(target) {
		return false, nil
	}
	if err := r.wallets.Deposit(ctx, owner, currency, target.Sub(current)); err != nil {
		return false, err
	}
	return true, nil
}
