// Package reporting sends crash reports to Sentry.
package reporting

import (
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

// Init configures Sentry. An empty DSN disables reporting entirely, which is
// the normal state for local development and the simulator.
func Init(dsn, version string) {
	if dsn == "" {
		return
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		AttachStacktrace: true,
		Release:          version,
	})
	if err != nil {
		slog.Error("sentry.Init:", "error", err)
	}
}

// PanicListener reports a panic message at fatal level and flushes before
// the process dies.
func PanicListener(msg string) {
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelFatal)
	})

	sentry.CaptureMessage(msg)
	if result := sentry.Flush(6 * time.Second); !result {
		slog.Error("sentry.Flush: timeout")
	}
}
