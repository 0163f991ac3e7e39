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
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	gateOutcomes      metric.Int64Counter
	resolveDuration   metric.Float64Histogram
	resolverCache     metric.Int64Counter
	policiesCreated   metric.Int64Counter
	documentsRendered metric.Int64Counter
	rateLimitDenied   metric.Int64Counter
	crossTenantDenied metric.Int64Counter
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
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "compligenie"
	}
	meter := provider.Meter(name)

	gateOutcomes, err := meter.Int64Counter("compligenie_tenant_gate_outcomes_total",
		metric.WithDescription("Tenant gate decisions by outcome."))
	if err != nil {
		return nil, err
	}
	resolveDuration, err := meter.Float64Histogram("compligenie_tenant_resolve_duration_seconds",
		metric.WithDescription("Credential resolution latency including cache."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	resolverCache, err := meter.Int64Counter("compligenie_tenant_resolver_cache_total",
		metric.WithDescription("Resolver cache lookups by result."))
	if err != nil {
		return nil, err
	}
	policiesCreated, err := meter.Int64Counter("compligenie_policies_generated_total")
	if err != nil {
		return nil, err
	}
	documentsRendered, err := meter.Int64Counter("compligenie_policy_documents_rendered_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("compligenie_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}
	crossTenantDenied, err := meter.Int64Counter("compligenie_cross_tenant_denied_total",
		metric.WithDescription("Reads refused because the record belongs to another tenant."))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gateOutcomes:      gateOutcomes,
		resolveDuration:   resolveDuration,
		resolverCache:     resolverCache,
		policiesCreated:   policiesCreated,
		documentsRendered: documentsRendered,
		rateLimitDenied:   rateLimitDenied,
		crossTenantDenied: crossTenantDenied,
	}, nil
}

// RecordGateOutcome counts a tenant gate decision.
func (m *Metrics) RecordGateOutcome(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.gateOutcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// ObserveResolve records how long a credential lookup took.
func (m *Metrics) ObserveResolve(ctx context.Context, d time.Duration, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.resolveDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

// RecordResolverCache counts resolver cache hits, misses and errors.
func (m *Metrics) RecordResolverCache(ctx context.Context, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("result", strings.TrimSpace(result)))
	m.resolverCache.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPolicyGenerated counts generated policies per industry.
func (m *Metrics) RecordPolicyGenerated(ctx context.Context, industry, mode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("industry", strings.TrimSpace(industry)),
		attribute.String("mode", strings.TrimSpace(mode)),
	)
	m.policiesCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDocumentRendered counts rendered policy documents.
func (m *Metrics) RecordDocumentRendered(ctx context.Context, format string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("format", strings.TrimSpace(format)))
	m.documentsRendered.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCrossTenantDenied counts refused reads of another tenant's records.
func (m *Metrics) RecordCrossTenantDenied(ctx context.Context, resource string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("resource", strings.TrimSpace(resource)))
	m.crossTenantDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
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

// tenant_id is deliberately absent: tenants are unbounded.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"outcome":     {},
	"result":      {},
	"industry":    {},
	"mode":        {},
	"format":      {},
	"endpoint":    {},
	"status_code": {},
	"reason":      {},
	"resource":    {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
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
