// Package billingapitest provides testify mocks for the billing provider client.
package billingapitest

import (
	"context"

	"github.com/smallbiznis/revlens/internal/billingapi/domain"
	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v74"
)

type Client struct {
	mock.Mock
}

func (m *Client) ListCustomers(ctx context.Context, req domain.CustomerPageRequest) (domain.Page[*stripe.Customer], error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.Page[*stripe.Customer]), args.Error(1)
}

func (m *Client) ListSubscriptions(ctx context.Context, req domain.SubscriptionPageRequest) (domain.Page[*stripe.Subscription], error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.Page[*stripe.Subscription]), args.Error(1)
}

func (m *Client) ListEvents(ctx context.Context, req domain.EventPageRequest) (domain.Page[*stripe.Event], error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.Page[*stripe.Event]), args.Error(1)
}

func (m *Client) RetrieveAccount(ctx context.Context) (domain.Account, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Account), args.Error(1)
}

// Factory hands out the same Client for every credential it accepts.
type Factory struct {
	mock.Mock
}

func (m *Factory) New(credential string) (domain.Client, error) {
	args := m.Called(credential)
	client, _ := args.Get(0).(domain.Client)
	return client, args.Error(1)
}

// CustomerPage is a terminal page of customers.
func CustomerPage(customers ...*stripe.Customer) domain.Page[*stripe.Customer] {
	return domain.NewPage(customers, false, func(c *stripe.Customer) string { return c.ID })
}

func SubscriptionPage(subs ...*stripe.Subscription) domain.Page[*stripe.Subscription] {
	return domain.NewPage(subs, false, func(s *stripe.Subscription) string { return s.ID })
}

func EventPage(events ...*stripe.Event) domain.Page[*stripe.Event] {
	return domain.NewPage(events, false, func(e *stripe.Event) string { return e.ID })
}
