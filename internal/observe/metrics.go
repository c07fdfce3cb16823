// Package observe provides the OpenTelemetry metrics of the syllabs service and the
// Prometheus exporter bridge that publishes them.
package observe

import (
	"context"
	"fmt"
	"sync"

	"github.com/book-expert/syllabs/internal/syllable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// meterName is the instrumentation scope name used for all syllabs metrics.
const meterName = "github.com/book-expert/syllabs"

const defaultServiceName = "syllabs"

// Metrics holds the metric instruments of the keystroke pipeline.
type Metrics struct {
	// KeystrokesAccepted counts key presses that passed the debounce gate. Use with
	// attribute.Bool("mapped", ...).
	KeystrokesAccepted metric.Int64Counter

	// KeystrokesDropped counts key presses dropped by the debounce gate.
	KeystrokesDropped metric.Int64Counter

	// SyllablesPlayed counts playback requests. Use with attribute.Bool("complete", ...).
	SyllablesPlayed metric.Int64Counter

	// BufferResets counts keystrokes that left the buffer empty.
	BufferResets metric.Int64Counter

	// ActiveSessions tracks the number of live typing sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}

	var err error

	if met.KeystrokesAccepted, err = m.Int64Counter("syllabs.keystrokes.accepted",
		metric.WithDescription("Key presses accepted by the debounce gate."),
	); err != nil {
		return nil, fmt.Errorf("failed to create keystrokes.accepted counter: %w", err)
	}

	if met.KeystrokesDropped, err = m.Int64Counter("syllabs.keystrokes.dropped",
		metric.WithDescription("Key presses dropped by the debounce gate."),
	); err != nil {
		return nil, fmt.Errorf("failed to create keystrokes.dropped counter: %w", err)
	}

	if met.SyllablesPlayed, err = m.Int64Counter("syllabs.syllables.played",
		metric.WithDescription("Playback requests issued, by buffer completeness."),
	); err != nil {
		return nil, fmt.Errorf("failed to create syllables.played counter: %w", err)
	}

	if met.BufferResets, err = m.Int64Counter("syllabs.buffer.resets",
		metric.WithDescription("Accepted key presses that left the syllable buffer empty."),
	); err != nil {
		return nil, fmt.Errorf("failed to create buffer.resets counter: %w", err)
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("syllabs.active_sessions",
		metric.WithDescription("Number of live typing sessions."),
	); err != nil {
		return nil, fmt.Errorf("failed to create active_sessions gauge: %w", err)
	}

	return met, nil
}

// RecordKeystroke records the outcome of one key press.
func (m *Metrics) RecordKeystroke(ctx context.Context, outcome syllable.Outcome) {
	if !outcome.Accepted {
		m.KeystrokesDropped.Add(ctx, 1)

		return
	}

	m.KeystrokesAccepted.Add(ctx, 1, metric.WithAttributes(attribute.Bool("mapped", outcome.Mapped)))

	if outcome.Played {
		complete := outcome.State == syllable.StateComplete
		m.SyllablesPlayed.Add(ctx, 1, metric.WithAttributes(attribute.Bool("complete", complete)))
	}

	if outcome.State == syllable.StateEmpty {
		m.BufferResets.Add(ctx, 1)
	}
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level Metrics built on the global meter provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error

		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic(fmt.Sprintf("observe: failed to create default metrics: %v", err))
		}
	})

	return defaultMetrics
}

// InitProvider installs a global meter provider exporting through the Prometheus
// registry. The returned function flushes and shuts the provider down.
func InitProvider(serviceName, serviceVersion string) (func(context.Context) error, error) {
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	)

	exporter, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}
