package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkMetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/masahide/huginn-discord/pkg/huginn"
)

const meterName = "huginn-discord"

// OTel exposes the last polled status as gauges and counts poll outcomes.
type OTel struct {
	mp      *sdkMetric.MeterProvider
	fetches metric.Int64Counter

	mu   sync.Mutex
	last huginn.Status
	seen bool
}

// NewOTel exports over OTLP/HTTP. The endpoint and headers come from the
// standard OTEL_EXPORTER_OTLP_* environment variables.
func NewOTel(ctx context.Context, interval time.Duration) (*OTel, error) {
	exp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	o, err := newOTel(sdkMetric.NewPeriodicReader(exp, sdkMetric.WithInterval(interval)))
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(o.mp)
	return o, nil
}

func newOTel(reader sdkMetric.Reader) (*OTel, error) {
	o := &OTel{mp: sdkMetric.NewMeterProvider(sdkMetric.WithReader(reader))}
	meter := o.mp.Meter(meterName)

	var err error
	o.fetches, err = meter.Int64Counter("huginn.fetch", metric.WithDescription("status polls by outcome"))
	if err != nil {
		return nil, err
	}
	online, err := meter.Int64ObservableGauge("valheim.players.online")
	if err != nil {
		return nil, err
	}
	maxPlayers, err := meter.Int64ObservableGauge("valheim.players.max")
	if err != nil {
		return nil, err
	}
	_, err = meter.RegisterCallback(func(ctx context.Context, ob metric.Observer) error {
		o.mu.Lock()
		st, seen := o.last, o.seen
		o.mu.Unlock()
		if !seen {
			return nil
		}
		attrs := metric.WithAttributeSet(attribute.NewSet(attribute.String("server", st.Name)))
		ob.ObserveInt64(online, int64(st.Players), attrs)
		ob.ObserveInt64(maxPlayers, int64(st.MaxPlayers), attrs)
		return nil
	}, online, maxPlayers)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (o *OTel) Record(ctx context.Context, res huginn.Result, _ time.Time) error {
	st, ok := res.Status()
	outcome := "unavailable"
	if ok {
		outcome = "available"
		o.mu.Lock()
		o.last, o.seen = st, true
		o.mu.Unlock()
	}
	o.fetches.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return nil
}

// Shutdown flushes pending metrics.
func (o *OTel) Shutdown(ctx context.Context) error {
	return o.mp.Shutdown(ctx)
}
