package offer

import (
	"context"
	"strings"

	"github.com/louisbranch/catmarket/internal/platform/grpc/pagination"
	"github.com/louisbranch/catmarket/internal/services/trading/domain"
	"github.com/louisbranch/catmarket/internal/services/trading/filter"
	"github.com/louisbranch/catmarket/internal/services/trading/storage"
)

const (
	defaultListOffersPageSize = 20
	maxListOffersPageSize     = 100
)

var listOffersOrderBy = pagination.OrderByConfig{
	Default: "created_at desc",
	Allowed: []string{
		"created_at desc",
		"created_at asc",
		"price asc",
		"price desc",
		"level desc",
		"level asc",
	},
}

// ListOffersInput selects offers for browsing. Empty fields do not filter;
// Statuses defaults to Pending.
type ListOffersInput struct {
	Statuses []domain.OfferStatus
	SellerID string
	Platform string
	MinPrice string
	MaxPrice string
	MinLevel *int
	MaxLevel *int
	// Filter is an AIP-160 expression over price, level, platform, currency,
	// seller_id, asset_id and status.
	Filter    string
	OrderBy   string
	PageSize  int32
	PageToken string
}

// OfferPage is one page of listed offers.
type OfferPage struct {
	Offers        []domain.OfferSummary
	NextPageToken string
}

// ListOffers pages through offers from the read replica. Results may trail
// the primary store briefly.
func (r *Registry) ListOffers(ctx context.Context, input ListOffersInput) (OfferPage, error) {
	query, err := buildOfferQuery(input)
	if err != nil {
		return OfferPage{}, err
	}
	pageSize := query.Limit
	query.Limit = pageSize + 1

	summaries, err := r.store.ReadReplica().ListOffers(ctx, query)
	if err != nil {
		return OfferPage{}, domain.InternalError("list offers", err)
	}
	page := OfferPage{Offers: summaries}
	if len(summaries) > pageSize {
		page.Offers = summaries[:pageSize]
		page.NextPageToken = pagination.EncodeOffsetToken(query.Offset + pageSize)
	}
	return page, nil
}

func buildOfferQuery(input ListOffersInput) (storage.OfferQuery, error) {
	query := storage.OfferQuery{
		SellerID: strings.TrimSpace(input.SellerID),
		Limit: pagination.ClampPageSize(input.PageSize, pagination.PageSizeConfig{
			Default: defaultListOffersPageSize,
			Max:     maxListOffersPageSize,
		}),
	}

	query.Statuses = input.Statuses
	if len(query.Statuses) == 0 {
		query.Statuses = []domain.OfferStatus{domain.OfferPending}
	}
	for _, status := range query.Statuses {
		if !status.Valid() {
			return storage.OfferQuery{}, domain.ValidationError("offer status %q is not recognized", status)
		}
	}
	if strings.TrimSpace(input.Platform) != "" {
		platform, err := domain.ParsePlatform(input.Platform)
		if err != nil {
			return storage.OfferQuery{}, err
		}
		query.Platform = platform
	}

	var err error
	if query.MinPriceMinor, err = priceBound(input.MinPrice, "min price"); err != nil {
		return storage.OfferQuery{}, err
	}
	if query.MaxPriceMinor, err = priceBound(input.MaxPrice, "max price"); err != nil {
		return storage.OfferQuery{}, err
	}
	if query.MinPriceMinor != nil && query.MaxPriceMinor != nil && *query.MinPriceMinor > *query.MaxPriceMinor {
		return storage.OfferQuery{}, domain.ValidationError("min price must not exceed max price")
	}
	if input.MinLevel != nil && input.MaxLevel != nil && *input.MinLevel > *input.MaxLevel {
		return storage.OfferQuery{}, domain.ValidationError("min level must not exceed max level")
	}
	query.MinLevel = input.MinLevel
	query.MaxLevel = input.MaxLevel

	cond, err := filter.ParseOfferFilter(input.Filter)
	if err != nil {
		return storage.OfferQuery{}, domain.ValidationError("invalid filter: %v", err)
	}
	query.FilterClause = cond.Clause
	query.FilterParams = cond.Params

	orderBy, err := pagination.NormalizeOrderBy(input.OrderBy, listOffersOrderBy)
	if err != nil {
		return storage.OfferQuery{}, domain.ValidationError("%v", err)
	}
	query.OrderBy = orderBy

	offset, err := pagination.DecodeOffsetToken(input.PageToken)
	if err != nil {
		return storage.OfferQuery{}, domain.ValidationError("%v", err)
	}
	query.Offset = offset
	return query, nil
}

func priceBound(raw, name string) (*int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	price, err := domain.ParsePrice(raw)
	if err != nil {
		return nil, domain.ValidationError("%s: %v", name, err)
	}
	minor := domain.ToMinorUnits(price)
	return &minor, nil
}
