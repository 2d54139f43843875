// Package reporting sends unexpected failures to Sentry.
//
// Reporting is optional: with an empty DSN Init is a no-op and every
// capture call is silently dropped by the SDK.
package reporting

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/nerrad567/familytree-core/internal/infrastructure/config"
)

// flushTimeout bounds how long shutdown waits for queued events.
const flushTimeout = 2 * time.Second

// Init configures the global Sentry client.
//
// Returns:
//   - bool: true if reporting is active
//   - error: If the DSN is malformed
func Init(cfg config.ReportingConfig, environment, release string) (bool, error) {
	if cfg.DSN == "" {
		return false, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      environment,
		Release:          release,
		SampleRate:       cfg.SampleRate,
		AttachStacktrace: true,
	})
	if err != nil {
		return false, fmt.Errorf("initialising sentry: %w", err)
	}
	return true, nil
}

// Capture reports err with the given tags.
func Capture(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

// CapturePanic reports a recovered panic with its stack.
func CapturePanic(recovered any, stack []byte, tags map[string]string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetExtra("panic", fmt.Sprint(recovered))
		scope.SetExtra("stack", string(stack))
		scope.SetLevel(sentry.LevelFatal)
		sentry.CaptureMessage("panic in request")
	})
}

// Flush waits for queued events to be delivered.
func Flush() {
	sentry.Flush(flushTimeout)
}
