package stripeclient

import (
	"net/http"
	"time"

	"github.com/smallbiznis/revlens/internal/billingapi/domain"
	"github.com/smallbiznis/revlens/internal/config"
	obsmetrics "github.com/smallbiznis/revlens/internal/observability/metrics"
	"github.com/smallbiznis/revlens/internal/throttle"
	"go.uber.org/zap"
)

// Factory hands out one Client per merchant credential. Every client gets its
// own throttle so concurrent merchant syncs do not slow each other down.
type Factory struct {
	baseURL    string
	httpClient *http.Client
	tuning     *config.AnalyticsConfigHolder
	log        *zap.Logger
}

func NewFactory(cfg config.Config, tuning *config.AnalyticsConfigHolder, log *zap.Logger) *Factory {
	return &Factory{
		baseURL:    cfg.StripeAPIURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tuning:     tuning,
		log:        log,
	}
}

func (f *Factory) New(credential string) (domain.Client, error) {
	c, err := New(credential, Options{
		BaseURL:    f.baseURL,
		HTTPClient: f.httpClient,
		Logger:     f.log,
		Throttle:   throttle.New(f.requestsPerSecond()),
		Metrics:    obsmetrics.Sync(),
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (f *Factory) requestsPerSecond() float64 {
	if f.tuning == nil {
		return throttle.DefaultRequestsPerSecond
	}
	return f.tuning.Get().Throttle.RequestsPerSecond
}
