package domain

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v74"
)

// MaxPageSize is the largest page the provider will return.
const MaxPageSize = 100

// SubscriptionStatusAll asks the provider for subscriptions in every status,
// including canceled ones.
const SubscriptionStatusAll = "all"

// Page is one slice of a cursor-paginated list. NextCursor is the id of the
// last record and is only set when HasMore is true.
type Page[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
}

type CustomerPageRequest struct {
	Limit         int64
	StartingAfter string
	CreatedGTE    *time.Time
}

type SubscriptionPageRequest struct {
	Limit         int64
	StartingAfter string
	Status        string
}

type EventPageRequest struct {
	Limit         int64
	StartingAfter string
	CreatedGTE    *time.Time
	Types         []string
}

// Account is the subset of the provider account shown during credential validation.
type Account struct {
	ID          string
	DisplayName string
}

// Client lists provider records one page at a time.
type Client interface {
	ListCustomers(ctx context.Context, req CustomerPageRequest) (Page[*stripe.Customer], error)
	ListSubscriptions(ctx context.Context, req SubscriptionPageRequest) (Page[*stripe.Subscription], error)
	ListEvents(ctx context.Context, req EventPageRequest) (Page[*stripe.Event], error)
	RetrieveAccount(ctx context.Context) (Account, error)
}

// Factory builds a Client bound to one merchant credential.
type Factory interface {
	New(credential string) (Client, error)
}

// ClampLimit bounds a requested page size to 1..MaxPageSize.
func ClampLimit(limit int64) int64 {
	if limit <= 0 || limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// NewPage builds a page from records and the provider's has_more flag.
func NewPage[T any](data []T, hasMore bool, id func(T) string) Page[T] {
	page := Page[T]{Data: data, HasMore: hasMore && len(data) > 0}
	if page.HasMore {
		page.NextCursor = id(data[len(data)-1])
	}
	return page
}
