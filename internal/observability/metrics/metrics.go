package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
}

// Metrics exposes business-level instruments pushed over OTLP.
type Metrics struct {
	recordsSynced     metric.Int64Counter
	snapshotsComputed metric.Int64Counter
	syncFailures      metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "revlens"
	}
	meter := provider.Meter(name)

	recordsSynced, err := meter.Int64Counter("revlens.records.synced")
	if err != nil {
		return nil, err
	}
	snapshotsComputed, err := meter.Int64Counter("revlens.snapshots.computed")
	if err != nil {
		return nil, err
	}
	syncFailures, err := meter.Int64Counter("revlens.sync.failures")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		recordsSynced:     recordsSynced,
		snapshotsComputed: snapshotsComputed,
		syncFailures:      syncFailures,
	}, nil
}

// NewNoop returns instruments bound to a noop provider, for tests and tools.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordSynced(ctx context.Context, resource string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.recordsSynced.Add(ctx, int64(count), metric.WithAttributes(
		FilterAttributes(attribute.String("resource", resource))...,
	))
}

func (m *Metrics) RecordSnapshots(ctx context.Context, kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.snapshotsComputed.Add(ctx, int64(count), metric.WithAttributes(
		FilterAttributes(attribute.String("kind", kind))...,
	))
}

func (m *Metrics) RecordSyncFailure(ctx context.Context, stage string, err error) {
	if m == nil || err == nil {
		return
	}
	m.syncFailures.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("stage", stage),
		attribute.String("error_type", ClassifyError(err)),
	)...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"resource":    {},
	"kind":        {},
	"stage":       {},
	"error_type":  {},
	"endpoint":    {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
// Merchant ids are deliberately not allowed.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
