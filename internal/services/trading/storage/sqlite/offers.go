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

const offerColumns = `o.id, o.asset_id, o.seller_id, o.price_minor, o.currency, o.platform, o.status,
       o.accepts_counter_offers, o.special_requirements, o.expires_at, o.accepted_by,
       o.cancel_reason, o.created_at, o.updated_at`

// offerOrderings maps accepted order_by values to SQL.
var offerOrderings = map[string]string{
	"":                "o.created_at DESC, o.id DESC",
	"created_at desc": "o.created_at DESC, o.id DESC",
	"created_at asc":  "o.created_at ASC, o.id ASC",
	"price asc":       "o.price_minor ASC, o.id ASC",
	"price desc":      "o.price_minor DESC, o.id DESC",
	"level desc":      "a.level DESC, o.id ASC",
	"level asc":       "a.level ASC, o.id ASC",
}

func scanOffer(row rowScanner, extra ...any) (domain.Offer, error) {
	var (
		offer        domain.Offer
		priceMinor   int64
		platform     string
		status       string
		counterOffer int
		expiresAt    sql.NullInt64
		createdAt    int64
		updatedAt    int64
	)
	dest := []any{
		&offer.ID,
		&offer.AssetID,
		&offer.SellerID,
		&priceMinor,
		&offer.Currency,
		&platform,
		&status,
		&counterOffer,
		&offer.SpecialRequirements,
		&expiresAt,
		&offer.AcceptedBy,
		&offer.CancelReason,
		&createdAt,
		&updatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.Offer{}, err
	}
	offer.Price = domain.FromMinorUnits(priceMinor)
	offer.Platform = domain.Platform(platform)
	offer.Status = domain.OfferStatus(status)
	offer.AcceptsCounterOffers = counterOffer != 0
	offer.ExpiresAt = fromNullMillis(expiresAt)
	offer.CreatedAt = fromMillis(createdAt)
	offer.UpdatedAt = fromMillis(updatedAt)
	return offer, nil
}

// GetOffer returns one offer by ID.
func (r *reader) GetOffer(ctx context.Context, offerID string) (domain.Offer, error) {
	if err := r.ready(ctx); err != nil {
		return domain.Offer{}, err
	}
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return domain.Offer{}, fmt.Errorf("offer id is required")
	}
	offer, err := scanOffer(r.q.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers o WHERE o.id = ?`, offerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Offer{}, storage.ErrNotFound
		}
		return domain.Offer{}, fmt.Errorf("get offer: %w", err)
	}
	return offer, nil
}

// CountPendingOffersBySeller returns the seller's active offer count.
func (r *reader) CountPendingOffersBySeller(ctx context.Context, sellerID string) (int, error) {
	if err := r.ready(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM offers WHERE seller_id = ? AND status = ?`,
		strings.TrimSpace(sellerID), string(domain.OfferPending),
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending offers: %w", err)
	}
	return count, nil
}

// ListOffers returns offers joined with their asset's name and level.
func (r *reader) ListOffers(ctx context.Context, query storage.OfferQuery) ([]domain.OfferSummary, error) {
	if err := r.ready(ctx); err != nil {
		return nil, err
	}
	if query.Limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	orderBy, ok := offerOrderings[query.OrderBy]
	if !ok {
		return nil, fmt.Errorf("unsupported order: %s", query.OrderBy)
	}

	var (
		conditions []string
		params     []any
	)
	if len(query.Statuses) > 0 {
		placeholders := make([]string, len(query.Statuses))
		for i, status := range query.Statuses {
			placeholders[i] = "?"
			params = append(params, string(status))
		}
		conditions = append(conditions, "o.status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if query.SellerID != "" {
		conditions = append(conditions, "o.seller_id = ?")
		params = append(params, query.SellerID)
	}
	if query.Platform != "" {
		conditions = append(conditions, "o.platform = ?")
		params = append(params, string(query.Platform))
	}
	if query.MinPriceMinor != nil {
		conditions = append(conditions, "o.price_minor >= ?")
		params = append(params, *query.MinPriceMinor)
	}
	if query.MaxPriceMinor != nil {
		conditions = append(conditions, "o.price_minor <= ?")
		params = append(params, *query.MaxPriceMinor)
	}
	if query.MinLevel != nil {
		conditions = append(conditions, "a.level >= ?")
		params = append(params, *query.MinLevel)
	}
	if query.MaxLevel != nil {
		conditions = append(conditions, "a.level <= ?")
		params = append(params, *query.MaxLevel)
	}
	if clause := strings.TrimSpace(query.FilterClause); clause != "" {
		conditions = append(conditions, "("+clause+")")
		params = append(params, query.FilterParams...)
	}

	sqlText := `SELECT ` + offerColumns + `, a.name, a.level
  FROM offers o
  JOIN assets a ON a.id = o.asset_id`
	if len(conditions) > 0 {
		sqlText += "\n WHERE " + strings.Join(conditions, " AND ")
	}
	sqlText += "\n ORDER BY " + orderBy + "\n LIMIT ? OFFSET ?"
	params = append(params, query.Limit, query.Offset)

	rows, err := r.q.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	summaries := make([]domain.OfferSummary, 0, query.Limit)
	for rows.Next() {
		var summary domain.OfferSummary
		offer, err := scanOffer(rows, &summary.AssetName, &summary.AssetLevel)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		summary.Offer = offer
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offers: %w", err)
	}
	return summaries, nil
}

// ListExpiredPendingOffers returns Pending offers whose deadline is at or
// before now, oldest deadline first.
func (r *reader) ListExpiredPendingOffers(ctx context.Context, now time.Time, limit int) ([]domain.Offer, error) {
	if err := r.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := r.q.QueryContext(ctx, `SELECT `+offerColumns+`
  FROM offers o
 WHERE o.status = ? AND o.expires_at IS NOT NULL AND o.expires_at <= ?
 ORDER BY o.expires_at ASC, o.id ASC
 LIMIT ?`,
		string(domain.OfferPending), toMillis(now), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired offers: %w", err)
	}
	defer rows.Close()

	var offers []domain.Offer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired offer: %w", err)
		}
		offers = append(offers, offer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired offers: %w", err)
	}
	return offers, nil
}

// InsertOffer inserts a new offer. A second Pending offer for the same asset
// violates the partial unique index and yields storage.ErrConflict.
func (t *txStore) InsertOffer(ctx context.Context, offer domain.Offer) error {
	if err := t.ready(ctx); err != nil {
		return err
	}
	if offer.ID == "" || offer.AssetID == "" || offer.SellerID == "" {
		return fmt.Errorf("offer id, asset id and seller id are required")
	}
	if !offer.Status.Valid() {
		return fmt.Errorf("offer status %q is invalid", offer.Status)
	}
	counterOffers := 0
	if offer.AcceptsCounterOffers {
		counterOffers = 1
	}
	_, err := t.q.ExecContext(ctx, `
INSERT INTO offers (
	id, asset_id, seller_id, price_minor, currency, platform, status,
	accepts_counter_offers, special_requirements, expires_at, accepted_by,
	cancel_reason, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		offer.ID,
		offer.AssetID,
		offer.SellerID,
		domain.ToMinorUnits(offer.Price),
		offer.Currency,
		string(offer.Platform),
		string(offer.Status),
		counterOffers,
		offer.SpecialRequirements,
		nullMillis(offer.ExpiresAt),
		offer.AcceptedBy,
		offer.CancelReason,
		toMillis(offer.CreatedAt),
		toMillis(offer.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

// TransitionOffer applies a conditional status change.
func (t *txStore) TransitionOffer(ctx context.Context, transition storage.OfferTransition) (domain.Offer, error) {
	if err := t.ready(ctx); err != nil {
		return domain.Offer{}, err
	}
	if !domain.CanTransition(transition.From, transition.To) {
		return domain.Offer{}, fmt.Errorf("offer transition %s -> %s is not allowed", transition.From, transition.To)
	}

	// accepted_by names the reservation holder; it is set on accept and
	// cleared on revert so a stale buyer cannot act on a later reservation.
	acceptedBy := sql.NullString{}
	switch transition.To {
	case domain.OfferAccepted:
		acceptedBy = sql.NullString{String: transition.AcceptedBy, Valid: true}
	case domain.OfferPending:
		acceptedBy = sql.NullString{String: "", Valid: true}
	}
	cancelReason := sql.NullString{}
	if transition.To == domain.OfferCancelled {
		cancelReason = sql.NullString{String: transition.CancelReason, Valid: true}
	}

	sqlText := `UPDATE offers
   SET status = ?,
       accepted_by = COALESCE(?, accepted_by),
       cancel_reason = COALESCE(?, cancel_reason),
       updated_at = ?
 WHERE id = ? AND status = ?`
	params := []any{
		string(transition.To),
		acceptedBy,
		cancelReason,
		toMillis(transition.At),
		transition.OfferID,
		string(transition.From),
	}
	if transition.ExpectAcceptedBy != "" {
		sqlText += " AND accepted_by = ?"
		params = append(params, transition.ExpectAcceptedBy)
	}
	if transition.NotExpiredAt != nil {
		sqlText += " AND (expires_at IS NULL OR expires_at > ?)"
		params = append(params, toMillis(*transition.NotExpiredAt))
	}

	result, err := t.q.ExecContext(ctx, sqlText, params...)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Offer{}, storage.ErrConflict
		}
		return domain.Offer{}, fmt.Errorf("transition offer: %w", err)
	}
	changed, err := rowsChanged(result, "transition offer")
	if err != nil {
		return domain.Offer{}, err
	}
	current, err := t.GetOffer(ctx, transition.OfferID)
	if err != nil {
		return domain.Offer{}, err
	}
	if !changed {
		return current, storage.ErrPreconditionFailed
	}
	return current, nil
}
