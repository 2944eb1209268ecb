package trading

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tradingv1 "github.com/louisbranch/catmarket/api/trading/v1"
	"github.com/louisbranch/catmarket/internal/platform/logging"
	"github.com/louisbranch/catmarket/internal/services/shared/grpcauthctx"
	"github.com/louisbranch/catmarket/internal/services/trading/acceptance"
	"github.com/louisbranch/catmarket/internal/services/trading/domain"
	"github.com/louisbranch/catmarket/internal/services/trading/offer"
	"github.com/louisbranch/catmarket/internal/services/trading/settlement/credits"
	"github.com/louisbranch/catmarket/internal/services/trading/storage"
	"github.com/louisbranch/catmarket/internal/services/trading/storage/sqlite"
	"github.com/shopspring/decimal"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const workerID = "catmarket-worker"

type fixture struct {
	client  tradingv1.TradingServiceClient
	store   *sqlite.Store
	wallets *credits.Settler
	clock   *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "trading.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	tc := &testClock{now: testNow}
	clock := tc.Now
	wallets, err := credits.New(context.Background(), store.DB(), credits.WithClock(clock))
	if err != nil {
		t.Fatalf("new credits settler: %v", err)
	}
	registry, err := offer.NewRegistry(offer.Config{Store: store, Policy: domain.DefaultPolicy(), Clock: clock, Logger: logging.Nop()})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	coordinator, err := acceptance.NewCoordinator(acceptance.Config{
		Store: store, Settler: wallets, Policy: domain.DefaultPolicy(), Clock: clock, Logger: logging.Nop(),
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}

	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcauthctx.UnaryServerInterceptor()))
	tradingv1.RegisterTradingServiceServer(server, NewService(Config{
		Registry:      registry,
		Coordinator:   coordinator,
		Outbox:        store,
		SystemCallers: []string{workerID},
		Clock:         clock,
		Logger:        logging.Nop(),
	}))
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &fixture{client: tradingv1.NewTradingServiceClient(conn), store: store, wallets: wallets, clock: tc}
}

func (f *fixture) putAsset(t *testing.T, id, owner string, level int) {
	t.Helper()
	if err := f.store.PutAsset(context.Background(), domain.Asset{
		ID: id, OwnerID: owner, Name: "cat " + id, Level: level, CreatedAt: testNow, UpdatedAt: testNow,
	}); err != nil {
		t.Fatalf("put asset %s: %v", id, err)
	}
}

func as(userID string) context.Context {
	return grpcauthctx.WithUserID(context.Background(), userID)
}

func errorReason(t *testing.T, err error) string {
	t.Helper()
	for _, detail := range status.Convert(err).Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}

func TestCreateListAcceptRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.putAsset(t, "cat-1", "alice", 10)
	if err := f.wallets.Deposit(context.Background(), "bob", domain.CurrencyCredits, decimal.RequireFromString("100")); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	created, err := f.client.CreateOffer(as("alice"), &tradingv1.CreateOfferRequest{
		AssetID: "cat-1", Price: "25.5", Currency: "credits", Platform: "internal",
	})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if created.Offer.Status != string(domain.OfferPending) || created.Offer.Price != "25.50" || created.Offer.Currency != "CREDITS" {
		t.Fatalf("unexpected offer: %+v", created.Offer)
	}

	listed, err := f.client.ListOffers(as("bob"), &tradingv1.ListOffersRequest{Filter: "level >= 10"})
	if err != nil {
		t.Fatalf("list offers: %v", err)
	}
	if len(listed.Offers) != 1 || listed.Offers[0].Offer.ID != created.Offer.ID || listed.Offers[0].AssetLevel != 10 {
		t.Fatalf("unexpected listing: %+v", listed.Offers)
	}

	accepted, err := f.client.AcceptOffer(as("bob"), &tradingv1.AcceptOfferRequest{OfferID: created.Offer.ID})
	if err != nil {
		t.Fatalf("accept offer: %v", err)
	}
	if accepted.Trade.BuyerID != "bob" || accepted.Trade.SellerID != "alice" || accepted.Trade.Price != "25.50" {
		t.Fatalf("unexpected trade: %+v", accepted.Trade)
	}

	history, err := f.client.GetOwnershipHistory(as("bob"), &tradingv1.GetOwnershipHistoryRequest{AssetID: "cat-1"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	last := history.Records[len(history.Records)-1]
	if last.NewOwnerID != "bob" || last.TradeID != accepted.Trade.TradeID {
		t.Fatalf("unexpected ledger tail: %+v", last)
	}

	got, err := f.client.GetOffer(as("carol"), &tradingv1.GetOfferRequest{OfferID: created.Offer.ID})
	if err != nil {
		t.Fatalf("get offer: %v", err)
	}
	if got.Offer.Status != string(domain.OfferCompleted) || got.Offer.AcceptedBy != "bob" {
		t.Fatalf("unexpected offer after accept: %+v", got.Offer)
	}
}

func TestRequestsRequireCaller(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.CreateOffer(context.Background(), &tradingv1.CreateOfferRequest{AssetID: "cat-1"})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("code = %v, want %v", status.Code(err), codes.Unauthenticated)
	}
}

func TestDomainErrorsMapToStatus(t *testing.T) {
	f := newFixture(t)
	f.putAsset(t, "cat-1", "alice", 10)
	f.putAsset(t, "kitten", "alice", 2)
	created, err := f.client.CreateOffer(as("alice"), &tradingv1.CreateOfferRequest{
		AssetID: "cat-1", Price: "5", Currency: "credits", Platform: "internal",
	})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	tests := []struct {
		name   string
		call   func() error
		code   codes.Code
		reason string
	}{
		{
			name: "bad price",
			call: func() error {
				_, err := f.client.CreateOffer(as("alice"), &tradingv1.CreateOfferRequest{AssetID: "cat-1", Price: "-1", Currency: "credits", Platform: "internal"})
				return err
			},
			code: codes.InvalidArgument, reason: "VALIDATION_FAILED",
		},
		{
			name: "low level",
			call: func() error {
				_, err := f.client.CreateOffer(as("alice"), &tradingv1.CreateOfferRequest{AssetID: "kitten", Price: "5", Currency: "credits", Platform: "internal"})
				return err
			},
			code: codes.InvalidArgument, reason: "VALIDATION_FAILED",
		},
		{
			name: "not owner",
			call: func() error {
				_, err := f.client.CreateOffer(as("mallory"), &tradingv1.CreateOfferRequest{AssetID: "cat-1", Price: "5", Currency: "credits", Platform: "internal"})
				return err
			},
			code: codes.PermissionDenied, reason: "NOT_OWNER",
		},
		{
			name: "cancel by stranger",
			call: func() error {
				_, err := f.client.CancelOffer(as("mallory"), &tradingv1.CancelOfferRequest{OfferID: created.Offer.ID})
				return err
			},
			code: codes.PermissionDenied, reason: "UNAUTHORIZED",
		},
		{
			name: "accept missing offer",
			call: func() error {
				_, err := f.client.AcceptOffer(as("bob"), &tradingv1.AcceptOfferRequest{OfferID: "missing"})
				return err
			},
			code: codes.NotFound, reason: "NOT_FOUND",
		},
		{
			name: "accept without funds",
			call: func() error {
				_, err := f.client.AcceptOffer(as("bob"), &tradingv1.AcceptOfferRequest{OfferID: created.Offer.ID})
				return err
			},
			code: codes.FailedPrecondition, reason: "INSUFFICIENT_FUNDS",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			if status.Code(err) != tc.code {
				t.Fatalf("code = %v, want %v (%v)", status.Code(err), tc.code, err)
			}
			if reason := errorReason(t, err); reason != tc.reason {
				t.Fatalf("reason = %q, want %q", reason, tc.reason)
			}
		})
	}
}

func TestCancelAndRejectOffer(t *testing.T) {
	f := newFixture(t)
	f.putAsset(t, "cat-1", "alice", 10)
	created, err := f.client.CreateOffer(as("alice"), &tradingv1.CreateOfferRequest{
		AssetID: "cat-1", Price: "5", Currency: "credits", Platform: "internal",
	})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	declined, err := f.client.RejectOffer(as("bob"), &tradingv1.RejectOfferRequest{OfferID: created.Offer.ID, Reason: "too pricey"})
	if err != nil {
		t.Fatalf("reject offer: %v", err)
	}
	if declined.Declination.BuyerID != "bob" || declined.Declination.Reason != "too pricey" {
		t.Fatalf("unexpected declination: %+v", declined.Declination)
	}

	cancelled, err := f.client.CancelOffer(as("alice"), &tradingv1.CancelOfferRequest{OfferID: created.Offer.ID})
	if err != nil {
		t.Fatalf("cancel offer: %v", err)
	}
	if cancelled.Offer.Status != string(domain.OfferCancelled) {
		t.Fatalf("status = %s", cancelled.Offer.Status)
	}
	_, err = f.client.CancelOffer(as("alice"), &tradingv1.CancelOfferRequest{OfferID: created.Offer.ID})
	if reason := errorReason(t, err); reason != "WRONG_STATE" {
		t.Fatalf("second cancel reason = %q (%v)", reason, err)
	}
}

func TestExpireOffersRequiresSystemCaller(t *testing.T) {
	f := newFixture(t)
	f.putAsset(t, "cat-1", "alice", 10)
	deadline := testNow.Add(time.Hour)
	if _, err := f.client.CreateOffer(as("alice"), &tradingv1.CreateOfferRequest{
		AssetID: "cat-1", Price: "5", Currency: "credits", Platform: "internal", ExpiresAt: &deadline,
	}); err != nil {
		t.Fatalf("create offer: %v", err)
	}

	early, err := f.client.ExpireOffers(as(workerID), &tradingv1.ExpireOffersRequest{})
	if err != nil {
		t.Fatalf("expire before deadline: %v", err)
	}
	if early.Expired != 0 {
		t.Fatalf("expired %d offers before their deadline", early.Expired)
	}

	f.clock.Advance(2 * time.Hour)
	if _, err := f.client.ExpireOffers(as("alice"), &tradingv1.ExpireOffersRequest{}); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("code = %v, want %v", status.Code(err), codes.PermissionDenied)
	}
	resp, err := f.client.ExpireOffers(as(workerID), &tradingv1.ExpireOffersRequest{})
	if err != nil {
		t.Fatalf("expire offers: %v", err)
	}
	if resp.Expired != 1 || resp.Scanned != 1 {
		t.Fatalf("unexpected sweep: %+v", resp)
	}
}

func TestLeaseAndAckEvents(t *testing.T) {
	f := newFixture(t)
	f.putAsset(t, "cat-1", "alice", 10)
	if _, err := f.client.CreateOffer(as("alice"), &tradingv1.CreateOfferRequest{
		AssetID: "cat-1", Price: "5", Currency: "credits", Platform: "internal",
	}); err != nil {
		t.Fatalf("create offer: %v", err)
	}

	leased, err := f.client.LeaseEvents(as(workerID), &tradingv1.LeaseEventsRequest{Consumer: "webhooks", LeaseTTLSeconds: 60})
	if err != nil {
		t.Fatalf("lease events: %v", err)
	}
	if len(leased.Events) != 1 || leased.Events[0].Type != string(domain.EventOfferCreated) {
		t.Fatalf("unexpected events: %+v", leased.Events)
	}
	if !leased.Events[0].LeaseExpiresAt.Equal(testNow.Add(time.Minute)) {
		t.Fatalf("lease expires at %v", leased.Events[0].LeaseExpiresAt)
	}

	again, err := f.client.LeaseEvents(as(workerID), &tradingv1.LeaseEventsRequest{Consumer: "other"})
	if err != nil {
		t.Fatalf("second lease: %v", err)
	}
	if len(again.Events) != 0 {
		t.Fatalf("leased event handed out twice: %+v", again.Events)
	}

	eventID := leased.Events[0].ID
	if _, err := f.client.AckEvent(as(workerID), &tradingv1.AckEventRequest{EventID: eventID, Consumer: "webhooks", Outcome: "retry"}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("retry without next attempt: code = %v", status.Code(err))
	}
	if _, err := f.client.AckEvent(as(workerID), &tradingv1.AckEventRequest{EventID: eventID, Consumer: "webhooks", Outcome: storage.AckSucceeded}); err != nil {
		t.Fatalf("ack event: %v", err)
	}
	if _, err := f.client.AckEvent(as(workerID), &tradingv1.AckEventRequest{EventID: eventID, Consumer: "webhooks", Outcome: storage.AckSucceeded}); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("second ack: code = %v", status.Code(err))
	}
	stored, err := f.store.GetOutboxEvent(context.Background(), eventID)
	if err != nil {
		t.Fatalf("get outbox event: %v", err)
	}
	if stored.Status != storage.OutboxDelivered || stored.AttemptCount != 1 {
		t.Fatalf("unexpected stored event: %+v", stored)
	}
}
