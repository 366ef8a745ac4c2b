package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry enables error reporting. An empty DSN leaves it disabled and
// every capture becomes a no-op.
func InitSentry(dsn, environment, release string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
	})
}

// FlushSentry waits briefly for buffered events to be sent.
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// CaptureError reports err with optional string tags.
func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}
