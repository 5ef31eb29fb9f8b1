package audit

import (
	"fmt"
	"time"

	"github.com/fairlines/authcore/internal/models"
	"github.com/getsentry/sentry-go"
)

// Notifier receives high and critical security events for external
// delivery. Implementations must not block the caller.
type Notifier interface {
	Notify(event models.SecurityEvent)
}

// SentryNotifier forwards events to Sentry. The SDK transport buffers
// and ships asynchronously, so Notify returns immediately.
type SentryNotifier struct{}

// NewSentryNotifier initializes the Sentry SDK and returns a notifier.
// An empty DSN disables delivery and returns nil.
func NewSentryNotifier(dsn, environment string) (*SentryNotifier, error) {
	if dsn == "" {
		return nil, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sentry: %w", err)
	}

	return &SentryNotifier{}, nil
}

func (n *SentryNotifier) Notify(event models.SecurityEvent) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentryLevel(event.Severity))
		scope.SetTag("kind", event.Kind)
		scope.SetTag("source", event.Source)
		if event.UserID != "" {
			scope.SetUser(sentry.User{ID: event.UserID})
		}
		for k, v := range event.Detail {
			scope.SetExtra(k, v)
		}
		sentry.CaptureMessage(fmt.Sprintf("security event: %s", event.Kind))
	})
}

// Flush drains buffered events on shutdown.
func (n *SentryNotifier) Flush() {
	sentry.Flush(2 * time.Second)
}

func sentryLevel(severity models.Severity) sentry.Level {
	if severity == models.SeverityCritical {
		return sentry.LevelFatal
	}
	return sentry.LevelError
}
