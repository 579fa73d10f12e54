// Package telemetry turns arbitration events into OpenTelemetry metrics.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/jmylchreest/alertflow/internal/monitor"
)

// InstrumentationName is the meter name used by the provider.
const InstrumentationName = "github.com/jmylchreest/alertflow"

// Observer is a monitor.Observer recording metrics for every event.
type Observer struct {
	events metric.Int64Counter
	wait   metric.Float64Histogram
}

// NewObserver creates the instruments on meter.
func NewObserver(meter metric.Meter) (*Observer, error) {
	var (
		o   Observer
		err error
	)

	o.events, err = meter.Int64Counter("alertflow.events.total",
		metric.WithDescription("Total number of arbitration events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	o.wait, err = meter.Float64Histogram("alertflow.display.wait",
		metric.WithDescription("Time from submission until a request became visible"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	return &o, nil
}

// ReceiveEvent implements monitor.Observer.
func (o *Observer) ReceiveEvent(e monitor.Event) {
	ctx := context.Background()
	o.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", e.Kind.String()),
		attribute.String("scope", e.Scope),
	))

	if e.Kind == monitor.KindShown && e.Request != nil && !e.Request.CreatedAt.IsZero() {
		wait := e.Time.Sub(e.Request.CreatedAt)
		if wait < 0 {
			wait = 0
		}
		o.wait.Record(ctx, wait.Seconds(), metric.WithAttributes(
			attribute.String("tier", e.Request.Tier.String()),
			attribute.String("scope", e.Scope),
		))
	}
}

// Provider owns an in-process meter provider whose metrics are pulled on
// demand.
type Provider struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
	logger   *slog.Logger
}

// NewProvider creates a Provider.
func NewProvider(logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	reader := sdkmetric.NewManualReader()
	return &Provider{
		reader:   reader,
		provider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		logger:   logger.With("component", "telemetry"),
	}
}

// Meter returns the alertflow meter.
func (p *Provider) Meter() metric.Meter {
	return p.provider.Meter(InstrumentationName)
}

// Point is one collected value. Histograms report their observation count
// as Value and the sum of observations as Sum.
type Point struct {
	Name       string  `json:"name"`
	Attributes string  `json:"attributes,omitempty"`
	Value      int64   `json:"value"`
	Sum        float64 `json:"sum,omitempty"`
}

// String returns "name{attrs} value".
func (p Point) String() string {
	return fmt.Sprintf("%s{%s} %d", p.Name, p.Attributes, p.Value)
}

// Collect reads the current metric values, sorted by name and attributes.
func (p *Provider) Collect(ctx context.Context) ([]Point, error) {
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("failed to collect metrics: %w", err)
	}

	var points []Point
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					points = append(points, Point{
						Name:       m.Name,
						Attributes: dp.Attributes.Encoded(attribute.DefaultEncoder()),
						Value:      dp.Value,
					})
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					points = append(points, Point{
						Name:       m.Name,
						Attributes: dp.Attributes.Encoded(attribute.DefaultEncoder()),
						Value:      int64(dp.Count),
						Sum:        dp.Sum,
					})
				}
			}
		}
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i].Name != points[j].Name {
			return points[i].Name < points[j].Name
		}
		return points[i].Attributes < points[j].Attributes
	})
	return points, nil
}

// Shutdown logs the final metric values and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	points, err := p.Collect(ctx)
	if err != nil {
		p.logger.Warn("failed to collect final metrics", "error", err)
	}
	for _, pt := range points {
		p.logger.Info("metric", "name", pt.Name, "attributes", pt.Attributes, "value", pt.Value)
	}
	return p.provider.Shutdown(ctx)
}
