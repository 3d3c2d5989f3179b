package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	instrumentsOnce sync.Once
	attempts        metric.Int64Counter
	attemptDuration metric.Float64Histogram
)

func instruments() (metric.Int64Counter, metric.Float64Histogram) {
	instrumentsOnce.Do(func() {
		meter := otel.Meter("github.com/instahelp/waconnect/metrics")
		var err error
		attempts, err = meter.Int64Counter("connect_attempts",
			metric.WithDescription("Completed connect attempts by outcome"))
		if err != nil {
			slog.Warn("failed to create connect_attempts metric", slog.Any("error", err))
		}
		attemptDuration, err = meter.Float64Histogram("connect_attempt_duration_seconds",
			metric.WithDescription("Duration of connect attempts in seconds"),
			metric.WithUnit("s"))
		if err != nil {
			slog.Warn("failed to create connect_attempt_duration_seconds metric", slog.Any("error", err))
		}
	})
	return attempts, attemptDuration
}

// RecordAttempt records one finished connect attempt. outcome is "success" or
// the failure reason; mode is "relay" or "direct".
func RecordAttempt(ctx context.Context, mode, outcome string, d time.Duration) {
	counter, hist := instruments()
	set := metric.WithAttributeSet(attribute.NewSet(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	))
	if counter != nil {
		counter.Add(ctx, 1, set)
	}
	if hist != nil {
		hist.Record(ctx, d.Seconds(), set)
	}
}
