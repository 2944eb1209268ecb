package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/catmarket/internal/services/trading/domain"
	"github.com/louisbranch/catmarket/internal/services/trading/storage"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "trading.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func putAsset(t *testing.T, store *Store, id, owner string, level int) {
	t.Helper()
	if err := store.PutAsset(context.Background(), domain.Asset{ID: id, OwnerID: owner, Name: "cat " + id, Level: level, CreatedAt: testNow, UpdatedAt: testNow}); err != nil {
		t.Fatalf("put asset %s: %v", id, err)
	}
}

func pendingOffer(id, assetID, seller string, price string) domain.Offer {
	return domain.Offer{
		ID:        id,
		AssetID:   assetID,
		SellerID:  seller,
		Price:     decimal.RequireFromString(price),
		Currency:  domain.CurrencyCredits,
		Platform:  domain.PlatformInternal,
		Status:    domain.OfferPending,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
}

func insertPendingOffer(t *testing.T, store *Store, offer domain.Offer) {
	t.Helper()
	err := store.WithTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		if err := tx.InsertOffer(ctx, offer); err != nil {
			return err
		}
		locked, err := tx.AcquireAssetLock(ctx, offer.AssetID, offer.ID, testNow)
		if err != nil {
			return err
		}
		if !locked {
			return errors.New("lock not acquired")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert pending offer: %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestPutAssetRoundTrip(t *testing.T) {
	store := openTempStore(t)
	putAsset(t, store, "cat-1", "alice", 10)

	asset, err := store.GetAsset(context.Background(), "cat-1")
	if err != nil {
		t.Fatalf("get asset: %v", err)
	}
	if asset.OwnerID != "alice" || asset.Level != 10 || asset.IsLocked() || asset.LastTradeCompletedAt != nil {
		t.Fatalf("unexpected asset %+v", asset)
	}
	if _, err := store.GetAsset(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	count, err := store.CountAssetsByOwner(context.Background(), "alice")
	if err != nil || count != 1 {
		t.Fatalf("count = %d, %v", count, err)
	}
}

func TestPutAssetRefusesOwnerChangeWhileLocked(t *testing.T) {
	store := openTempStore(t)
	putAsset(t, store, "cat-1", "alice", 10)
	insertPendingOffer(t, store, pendingOffer("o-1", "cat-1", "alice", "10"))

	err := store.PutAsset(context.Background(), domain.Asset{ID: "cat-1", OwnerID: "mallory", Level: 10})
	if !errors.Is(err, storage.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
	if err := store.PutAsset(context.Background(), domain.Asset{ID: "cat-1", OwnerID: "alice", Name: "renamed", Level: 12}); err != nil {
		t.Fatalf("same-owner update while locked: %v", err)
	}
	asset, _ := store.GetAsset(context.Background(), "cat-1")
	if asset.LockOfferID != "o-1" || asset.Level != 12 {
		t.Fatalf("directory update must keep the lock: %+v", asset)
	}
}

func TestAssetLockIsConditional(t *testing.T) {
	store := openTempStore(t)
	putAsset(t, store, "cat-1", "alice", 10)

	err := store.WithTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		ok, err := tx.AcquireAssetLock(ctx, "cat-1", "o-1", testNow)
		if err != nil || !ok {
			t.Fatalf("first acquire = %v, %v", ok, err)
		}
		ok, err = tx.AcquireAssetLock(ctx, "cat-1", "o-2", testNow)
		if err != nil || ok {
			t.Fatalf("second acquire = %v, %v", ok, err)
		}
		ok, err = tx.ReleaseAssetLock(ctx, "cat-1", "o-2", testNow)
		if err != nil || ok {
			t.Fatalf("stale release = %v, %v", ok, err)
		}
		ok, err = tx.ReleaseAssetLock(ctx, "cat-1", "o-1", testNow)
		if err != nil || !ok {
			t.Fatalf("owner release = %v, %v", ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with tx: %v", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	store := openTempStore(t)
	putAsset(t, store, "cat-1", "alice", 10)
	boom := errors.New("boom")

	err := store.WithTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		if err := tx.InsertOffer(ctx, pendingOffer("o-1", "cat-1", "alice", "10")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := store.GetOffer(context.Background(), "o-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("offer should be rolled back, got %v", err)
	}
}

func TestOnePendingOfferPerAsset(t *testing.T) {
	store := openTempStore(t)
	putAsset(t, store, "cat-1", "alice", 10)
	insertPendingOffer(t, store, pendingOffer("o-1", "cat-1", "alice", "10"))

	err := store.WithTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.InsertOffer(ctx, pendingOffer("o-2", "cat-1", "alice", "12"))
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestTransitionOfferCAS(t *testing.T) {
	store := openTempStore(t)
	putAsset(t, store, "cat-1", "alice", 10)
	insertPendingOffer(t, store, pendingOffer("o-1", "cat-1", "alice", "10"))
	ctx := context.Background()

	var accepted domain.Offer
	err := store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		accepted, err = tx.TransitionOffer(ctx, storage.OfferTransition{
			OfferID: "o-1", From: domain.OfferPending, To: domain.OfferAccepted, At: testNow, AcceptedBy: "bob", NotExpiredAt: &testNow,
		})
		return err
	})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != domain.OfferAccepted || accepted.AcceptedBy != "bob" {
		t.Fatalf("accepted offer = %+v", accepted)
	}

	err = store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		current, err := tx.TransitionOffer(ctx, storage.OfferTransition{
			OfferID: "o-1", From: domain.OfferPending, To: domain.OfferAccepted, At: testNow, AcceptedBy: "carol",
		})
		if current.Status != domain.OfferAccepted {
			t.Fatalf("loser should see current status, got %+v", current)
		}
		return err
	})
	if !errors.Is(err, storage.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure, got %v", err)
	}

	err = store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.TransitionOffer(ctx, storage.OfferTransition{
			OfferID: "o-1", From: domain.OfferAccepted, To: domain.OfferPending, At: testNow, ExpectAcceptedBy: "carol",
		})
		return err
	})
	if !errors.Is(err, storage.ErrPreconditionFailed) {
		t.Fatalf("revert by non-holder should fail, got %v", err)
	}

	var reverted domain.Offer
	err = store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		reverted, err = tx.TransitionOffer(ctx, storage.OfferTransition{
			OfferID: "o-1", From: domain.OfferAccepted, To: domain.OfferPending, At: testNow, ExpectAcceptedBy: "bob",
		})
		return err
	})
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if reverted.Status != domain.OfferPending || reverted.AcceptedBy != "" {
		t.Fatalf("reverted offer = %+v", reverted)
	}

	err = store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.TransitionOffer(ctx, storage.OfferTransition{OfferID: "missing", From: domain.OfferPending, To: domain.OfferCancelled, At: testNow})
		return err
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTransitionOfferRespectsDeadline(t *testing.T) {
	store := openTempStore(t)
	putAsset(t, store, "cat-1", "alice", 10)
	offer := pendingOffer("o-1", "cat-1", "alice", "10")
	deadline := testNow.Add(time.Minute)
	offer.ExpiresAt = &deadline
	insertPendingOffer(t, store, offer)

	late := deadline
	err := store.WithTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.TransitionOffer(ctx, storage.OfferTransition{
			OfferID: "o-1", From: domain.OfferPending, To: domain.OfferAccepted, At: late, AcceptedBy: "bob", NotExpiredAt: &late,
		})
		return err
	})
	if !errors.Is(err, storage.ErrPreconditionFailed) {
		t.Fatalf("expected expired offer to refuse accept, got %v", err)
	}

	expired, err := store.ListExpiredPendingOffers(context.Background(), late, 10)
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "o-1" {
		t.Fatalf("expired = %+v", expired)
	}
}

func TestTransferOwnershipAndLedger(t *testing.T) {
	store := openTempStore(t)
	putAsset(t, store, "cat-1", "alice", 10)
	insertPendingOffer(t, store, pendingOffer("o-1", "cat-1", "alice", "100"))
	ctx := context.Background()

	err := store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.TransferOwnership(ctx, storage.OwnershipTransfer{AssetID: "cat-1", FromOwnerID: "bob", ToOwnerID: "carol", OfferID: "o-1", At: testNow}); !errors.Is(err, storage.ErrPreconditionFailed) {
			t.Fatalf("transfer from wrong owner = %v", err)
		}
		if err := tx.TransferOwnership(ctx, storage.OwnershipTransfer{AssetID: "cat-1", FromOwnerID: "alice", ToOwnerID: "bob", OfferID: "o-1", At: testNow}); err != nil {
			return err
		}
		_, err := tx.AppendOwnershipRecord(ctx, domain.OwnershipRecord{
			AssetID: "cat-1", PreviousOwnerID: "alice", NewOwnerID: "bob", Reason: domain.OwnershipReasonTrade, TradeID: "t-1", Timestamp: testNow,
		})
		return err
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	asset, err := store.GetAsset(ctx, "cat-1")
	if err != nil {
		t.Fatalf("get asset: %v", err)
	}
	if asset.OwnerID != "bob" || asset.IsLocked() || asset.LastTradeCompletedAt == nil || !asset.LastTradeCompletedAt.Equal(testNow) {
		t.Fatalf("asset after transfer = %+v", asset)
	}
	latest, err := store.LatestOwnershipRecord(ctx, "cat-1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.PreviousOwnerID != "alice" || latest.NewOwnerID != "bob" || latest.Seq == 0 {
		t.Fatalf("latest record = %+v", latest)
	}
}

func TestOwnershipRecordsAreAppendOnly(t *testing.T) {
	store := openTempStore(t)
	putAsset(t, store, "cat-1", "alice", 10)
	ctx := context.Background()
	err := store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.AppendOwnershipRecord(ctx, domain.OwnershipRecord{AssetID: "cat-1", NewOwnerID: "alice", Reason: domain.OwnershipReasonGenesis, Timestamp: testNow})
		return err
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := store.DB().ExecContext(ctx, `UPDATE ownership_records SET new_owner_id = 'mallory'`); err == nil {
		t.Fatal("expected update to be rejected")
	}
	if _, err := store.DB().ExecContext(ctx, `DELETE FROM ownership_records`); err == nil {
		t.Fatal("expected delete to be rejected")
	}
	records, err := store.ListOwnershipRecords(ctx, "cat-1")
	if err != nil || len(records) != 1 || records[0].NewOwnerID != "alice" {
		t.Fatalf("records = %+v, %v", records, err)
	}
}

func TestListOffersFilters(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	putAsset(t, store, "cat-1", "alice", 10)
	putAsset(t, store, "cat-2", "alice", 3)
	putAsset(t, store, "cat-3", "bob", 20)
	insertPendingOffer(t, store, pendingOffer("o-1", "cat-1", "alice", "100"))
	insertPendingOffer(t, store, pendingOffer("o-2", "cat-2", "alice", "15.50"))
	third := pendingOffer("o-3", "cat-3", "bob", "250")
	third.Platform = domain.PlatformPartner
	third.CreatedAt = testNow.Add(time.Minute)
	insertPendingOffer(t, store, third)

	minPrice := domain.ToMinorUnits(decimal.RequireFromString("20"))
	minLevel := 5
	got, err := store.ReadReplica().ListOffers(ctx, storage.OfferQuery{
		Statuses:      []domain.OfferStatus{domain.OfferPending},
		MinPriceMinor: &minPrice,
		MinLevel:      &minLevel,
		OrderBy:       "price desc",
		Limit:         10,
	})
	if err != nil {
		t.Fatalf("list offers: %v", err)
	}
	if len(got) != 2 || got[0].Offer.ID != "o-3" || got[1].Offer.ID != "o-1" {
		t.Fatalf("unexpected listing %+v", got)
	}
	if got[0].AssetLevel != 20 || got[0].AssetName != "cat cat-3" {
		t.Fatalf("summary asset fields = %+v", got[0])
	}

	got, err = store.ListOffers(ctx, storage.OfferQuery{
		Platform:     domain.PlatformInternal,
		FilterClause: "o.seller_id = ?",
		FilterParams: []any{"alice"},
		OrderBy:      "price asc",
		Limit:        1,
		Offset:       1,
	})
	if err != nil {
		t.Fatalf("list offers with filter: %v", err)
	}
	if len(got) != 1 || got[0].Offer.ID != "o-1" {
		t.Fatalf("unexpected filtered page %+v", got)
	}
	if !got[0].Offer.Price.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("price = %s", got[0].Offer.Price)
	}

	if _, err := store.ListOffers(ctx, storage.OfferQuery{OrderBy: "name; DROP TABLE offers", Limit: 1}); err == nil {
		t.Fatal("expected unsupported order error")
	}
}

func TestOutboxLeaseAndAck(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	putAsset(t, store, "cat-1", "alice", 10)
	offer := pendingOffer("o-1", "cat-1", "alice", "10")
	event, err := domain.NewOfferCreatedEvent("evt-1", offer, testNow)
	if err != nil {
		t.Fatalf("build event: %v", err)
	}
	err = store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.InsertOffer(ctx, offer); err != nil {
			return err
		}
		return tx.EnqueueEvent(ctx, event)
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	leased, err := store.LeaseEvents(ctx, "worker-a", 10, time.Minute, testNow)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if len(leased) != 1 || leased[0].ID != "evt-1" || leased[0].LeaseOwner != "worker-a" {
		t.Fatalf("leased = %+v", leased)
	}
	again, err := store.LeaseEvents(ctx, "worker-b", 10, time.Minute, testNow.Add(30*time.Second))
	if err != nil {
		t.Fatalf("second lease: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("leased event must not be handed out twice, got %+v", again)
	}

	if err := store.AckEvent(ctx, storage.AckInput{EventID: "evt-1", Consumer: "worker-b", Outcome: storage.AckSucceeded, At: testNow}); !errors.Is(err, storage.ErrPreconditionFailed) {
		t.Fatalf("ack by non-owner = %v", err)
	}
	retryAt := testNow.Add(5 * time.Minute)
	if err := store.AckEvent(ctx, storage.AckInput{EventID: "evt-1", Consumer: "worker-a", Outcome: storage.AckRetry, NextAttemptAt: retryAt, LastError: "timeout", At: testNow}); err != nil {
		t.Fatalf("ack retry: %v", err)
	}
	stored, err := store.GetOutboxEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if stored.Status != storage.OutboxPending || stored.AttemptCount != 1 || stored.LastError != "timeout" || !stored.NextAttemptAt.Equal(retryAt) {
		t.Fatalf("after retry = %+v", stored)
	}

	if got, _ := store.LeaseEvents(ctx, "worker-b", 10, time.Minute, testNow.Add(time.Minute)); len(got) != 0 {
		t.Fatalf("event leased before retry time: %+v", got)
	}
	got, err := store.LeaseEvents(ctx, "worker-b", 10, time.Minute, retryAt)
	if err != nil || len(got) != 1 {
		t.Fatalf("lease after retry time = %+v, %v", got, err)
	}
	if err := store.AckEvent(ctx, storage.AckInput{EventID: "evt-1", Consumer: "worker-b", Outcome: storage.AckSucceeded, At: retryAt}); err != nil {
		t.Fatalf("ack succeeded: %v", err)
	}
	stored, _ = store.GetOutboxEvent(ctx, "evt-1")
	if stored.Status != storage.OutboxDelivered || stored.AttemptCount != 2 {
		t.Fatalf("after success = %+v", stored)
	}
	if err := store.AckEvent(ctx, storage.AckInput{EventID: "nope", Consumer: "worker-b", Outcome: storage.AckSucceeded, At: retryAt}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("ack missing event = %v", err)
	}
}

func TestTradeRoundTrip(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	putAsset(t, store, "cat-1", "alice", 10)
	insertPendingOffer(t, store, pendingOffer("o-1", "cat-1", "alice", "99.99"))

	trade := domain.Trade{
		ID: "t-1", OfferID: "o-1", AssetID: "cat-1", BuyerID: "bob", SellerID: "alice",
		Status: domain.TradeCompleted, Price: decimal.RequireFromString("99.99"), Currency: domain.CurrencyCredits,
		Payment:   domain.PaymentResult{Provider: "credits", Reference: "stl-1", SettledAt: testNow},
		CreatedAt: testNow, CompletedAt: testNow,
	}
	if err := store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error { return tx.InsertTrade(ctx, trade) }); err != nil {
		t.Fatalf("insert trade: %v", err)
	}
	got, err := store.GetTradeByOffer(ctx, "o-1")
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	if got.ID != "t-1" || !got.Price.Equal(trade.Price) || got.Payment.Reference != "stl-1" {
		t.Fatalf("trade = %+v", got)
	}
	err = store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error { return tx.InsertTrade(ctx, trade) })
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate trade = %v", err)
	}
}
