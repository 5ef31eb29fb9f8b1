// Package audit provides the append-only, bounded security event log.
//
// Writes are fire-and-forget from the caller's perspective: an append
// never fails and never blocks the request that triggered it beyond one
// short mutex hold. High and critical events are additionally handed to
// a Notifier for external delivery.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fairlines/authcore/internal/models"
	"github.com/google/uuid"
)

const (
	// DefaultCapacity is the maximum number of retained events.
	DefaultCapacity = 10000
	// DefaultRetain is how many events survive a trim. Trimming half the
	// buffer at once amortizes the cost instead of shifting one entry
	// per append at capacity.
	DefaultRetain = 5000
)

// Log is the in-memory bounded security event log. The buffer is
// write-light relative to reads of the rest of the system, so a single
// mutex around append+trim is sufficient.
type Log struct {
	mu       sync.Mutex
	events   []models.SecurityEvent
	capacity int
	retain   int
	logger   *slog.Logger
	notifier Notifier
	now      func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithCapacity overrides the buffer bounds.
func WithCapacity(capacity, retain int) Option {
	return func(l *Log) {
		if capacity > 0 && retain > 0 && retain < capacity {
			l.capacity = capacity
			l.retain = retain
		}
	}
}

// WithNotifier attaches an external alert sink for high/critical events.
func WithNotifier(n Notifier) Option {
	return func(l *Log) {
		l.notifier = n
	}
}

// WithClock replaces the time source. Test use only.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// NewLog creates a security event log.
func NewLog(logger *slog.Logger, opts ...Option) *Log {
	l := &Log{
		events:   make([]models.SecurityEvent, 0, 1024),
		capacity: DefaultCapacity,
		retain:   DefaultRetain,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends an event. Missing id/timestamp are filled in. The event
// is committed before Record returns; a client disconnect after this
// point cannot roll it back.
func (l *Log) Record(event models.SecurityEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}
	if event.Severity == "" {
		event.Severity = models.SeverityLow
	}

	l.mu.Lock()
	if len(l.events) >= l.capacity {
		// Drop the oldest half in one slide rather than one at a time.
		kept := len(l.events) - l.retain
		copy(l.events, l.events[kept:])
		l.events = l.events[:l.retain]
	}
	l.events = append(l.events, event)
	l.mu.Unlock()

	l.logger.LogAttrs(context.Background(), severityLevel(event.Severity), "security_event",
		slog.String("kind", event.Kind),
		slog.String("severity", string(event.Severity)),
		slog.String("source", event.Source),
		slog.String("user_id", event.UserID),
		slog.String("session_id", event.SessionID),
	)

	if l.notifier != nil && (event.Severity == models.SeverityHigh || event.Severity == models.SeverityCritical) {
		l.notifier.Notify(event)
	}
}

// Len reports the current number of retained events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Recent returns up to n events, newest first.
func (l *Log) Recent(n int) []models.SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filterLocked(n, func(models.SecurityEvent) bool { return true })
}

// ByUser returns up to n events for the given user, newest first.
func (l *Log) ByUser(userID string, n int) []models.SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filterLocked(n, func(e models.SecurityEvent) bool { return e.UserID == userID })
}

// BySeverity returns up to n events at the given severity, newest first.
func (l *Log) BySeverity(severity models.Severity, n int) []models.SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filterLocked(n, func(e models.SecurityEvent) bool { return e.Severity == severity })
}

func (l *Log) filterLocked(n int, match func(models.SecurityEvent) bool) []models.SecurityEvent {
	if n <= 0 {
		n = len(l.events)
	}
	out := make([]models.SecurityEvent, 0, n)
	for i := len(l.events) - 1; i >= 0 && len(out) < n; i-- {
		if match(l.events[i]) {
			out = append(out, l.events[i])
		}
	}
	return out
}

func severityLevel(severity models.Severity) slog.Level {
	switch severity {
	case models.SeverityCritical, models.SeverityHigh:
		return slog.LevelError
	case models.SeverityMedium:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
