// Package stripeclient implements the billing provider client on stripe-go.
package stripeclient

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/revlens/internal/billingapi/domain"
	obsmetrics "github.com/smallbiznis/revlens/internal/observability/metrics"
	"github.com/smallbiznis/revlens/internal/throttle"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"go.uber.org/zap"
)

const subscriptionExpand = "data.items.data.price.product"

// Options tunes the underlying stripe backend.
type Options struct {
	// BaseURL overrides the provider endpoint, used against test servers.
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
	// Throttle spaces every page request. A default 4 rps throttle is used
	// when nil.
	Throttle *throttle.Throttle
	Metrics  *obsmetrics.SyncMetrics
}

// Client is a domain.Client backed by one provider secret key.
type Client struct {
	api      *client.API
	throttle *throttle.Throttle
	metrics  *obsmetrics.SyncMetrics
	log      *zap.Logger
}

// New returns a client for key. Retries are disabled: a failed page aborts
// the sync and the next run resumes from persisted state.
func New(key string, opts Options) (*Client, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, domain.ErrMissingCredential
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     log.Named("stripe").Sugar(),
	}
	if url := strings.TrimSpace(opts.BaseURL); url != "" {
		backendCfg.URL = stripe.String(url)
	}

	api := &client.API{}
	api.Init(key, &stripe.Backends{
		API: stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
	})

	th := opts.Throttle
	if th == nil {
		th = throttle.New(throttle.DefaultRequestsPerSecond)
	}

	return &Client{
		api:      api,
		throttle: th,
		metrics:  opts.Metrics,
		log:      log.Named("billingapi.stripe"),
	}, nil
}

// wait blocks on the throttle before a page request.
func (c *Client) wait(ctx context.Context, resource string) error {
	waited, err := c.throttle.Wait(ctx)
	if err != nil {
		return err
	}
	c.metrics.ObserveThrottleWait(waited)
	c.metrics.IncPage(resource)
	return nil
}

func (c *Client) ListCustomers(ctx context.Context, req domain.CustomerPageRequest) (domain.Page[*stripe.Customer], error) {
	if err := c.wait(ctx, "customers"); err != nil {
		return domain.Page[*stripe.Customer]{}, err
	}

	params := &stripe.CustomerListParams{}
	params.Context = ctx
	params.Single = true
	params.Limit = stripe.Int64(domain.ClampLimit(req.Limit))
	if req.StartingAfter != "" {
		params.StartingAfter = stripe.String(req.StartingAfter)
	}
	if req.CreatedGTE != nil {
		params.CreatedRange = &stripe.RangeQueryParams{GreaterThanOrEqual: req.CreatedGTE.Unix()}
	}

	it := c.api.Customers.List(params)
	out := make([]*stripe.Customer, 0, domain.ClampLimit(req.Limit))
	for it.Next() {
		out = append(out, it.Customer())
	}
	if err := it.Err(); err != nil {
		return domain.Page[*stripe.Customer]{}, c.classify("customers", err)
	}
	return domain.NewPage(out, hasMore(it.Meta()), func(v *stripe.Customer) string { return v.ID }), nil
}

func (c *Client) ListSubscriptions(ctx context.Context, req domain.SubscriptionPageRequest) (domain.Page[*stripe.Subscription], error) {
	if err := c.wait(ctx, "subscriptions"); err != nil {
		return domain.Page[*stripe.Subscription]{}, err
	}

	params := &stripe.SubscriptionListParams{}
	params.Context = ctx
	params.Single = true
	params.Limit = stripe.Int64(domain.ClampLimit(req.Limit))
	params.AddExpand(subscriptionExpand)
	status := req.Status
	if status == "" {
		status = domain.SubscriptionStatusAll
	}
	params.Status = stripe.String(status)
	if req.StartingAfter != "" {
		params.StartingAfter = stripe.String(req.StartingAfter)
	}

	it := c.api.Subscriptions.List(params)
	out := make([]*stripe.Subscription, 0, domain.ClampLimit(req.Limit))
	for it.Next() {
		out = append(out, it.Subscription())
	}
	if err := it.Err(); err != nil {
		return domain.Page[*stripe.Subscription]{}, c.classify("subscriptions", err)
	}
	return domain.NewPage(out, hasMore(it.Meta()), func(v *stripe.Subscription) string { return v.ID }), nil
}

func (c *Client) ListEvents(ctx context.Context, req domain.EventPageRequest) (domain.Page[*stripe.Event], error) {
	if err := c.wait(ctx, "events"); err != nil {
		return domain.Page[*stripe.Event]{}, err
	}

	params := &stripe.EventListParams{}
	params.Context = ctx
	params.Single = true
	params.Limit = stripe.Int64(domain.ClampLimit(req.Limit))
	if req.StartingAfter != "" {
		params.StartingAfter = stripe.String(req.StartingAfter)
	}
	if req.CreatedGTE != nil {
		params.CreatedRange = &stripe.RangeQueryParams{GreaterThanOrEqual: req.CreatedGTE.Unix()}
	}
	if len(req.Types) > 0 {
		params.Types = stripe.StringSlice(req.Types)
	}

	it := c.api.Events.List(params)
	out := make([]*stripe.Event, 0, domain.ClampLimit(req.Limit))
	for it.Next() {
		out = append(out, it.Event())
	}
	if err := it.Err(); err != nil {
		return domain.Page[*stripe.Event]{}, c.classify("events", err)
	}
	return domain.NewPage(out, hasMore(it.Meta()), func(v *stripe.Event) string { return v.ID }), nil
}

// RetrieveAccount fetches the account behind the key. The display name falls
// back from the dashboard name to the business profile name.
func (c *Client) RetrieveAccount(ctx context.Context) (domain.Account, error) {
	if err := c.wait(ctx, "account"); err != nil {
		return domain.Account{}, err
	}
	// The account client only offers a context-free Get for the key's own
	// account, so call the backend with params that carry ctx.
	acct := &stripe.Account{}
	params := &stripe.AccountParams{Params: stripe.Params{Context: ctx}}
	err := c.api.Accounts.B.Call(http.MethodGet, "/v1/account", c.api.Accounts.Key, params, acct)
	if err != nil {
		return domain.Account{}, c.classify("account", err)
	}

	out := domain.Account{ID: acct.ID}
	if acct.Settings != nil && acct.Settings.Dashboard != nil {
		out.DisplayName = strings.TrimSpace(acct.Settings.Dashboard.DisplayName)
	}
	if out.DisplayName == "" && acct.BusinessProfile != nil {
		out.DisplayName = strings.TrimSpace(acct.BusinessProfile.Name)
	}
	return out, nil
}

func hasMore(meta *stripe.ListMeta) bool {
	return meta != nil && meta.HasMore
}

func (c *Client) classify(resource string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		c.log.Warn("billingapi.request_failed", zap.String("resource", resource), zap.Error(err))
		return &domain.ProviderError{Kind: domain.ErrTransport, Cause: err}
	}

	kind := domain.ErrTransport
	switch status := stripeErr.HTTPStatusCode; {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = domain.ErrAuthentication
	case status == http.StatusTooManyRequests:
		kind = domain.ErrRateLimited
	case status >= 400 && status < 500:
		kind = domain.ErrInvalidRequest
	}

	c.log.Warn("billingapi.request_rejected",
		zap.String("resource", resource),
		zap.Int("status_code", stripeErr.HTTPStatusCode),
		zap.String("code", string(stripeErr.Code)),
	)
	return &domain.ProviderError{
		Kind:       kind,
		StatusCode: stripeErr.HTTPStatusCode,
		Code:       string(stripeErr.Code),
		Message:    stripeErr.Msg,
	}
}
