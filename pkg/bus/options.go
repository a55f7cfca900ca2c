package bus

import (
	"io"
	"log/slog"
	"time"

	"github.com/shashiranjanraj/patternbus/pkg/logger"
)

// Logger is the logging capability the bus needs. *slog.Logger satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// DefaultSource is stamped on events fired without a Source.
const DefaultSource = "unknown"

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logging collaborator. A nil logger discards output.
func WithLogger(l Logger) Option {
	return func(b *Bus) {
		if l == nil {
			l = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		b.log = l
	}
}

// WithClock overrides the clock used to stamp Event.Timestamp.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

// WithSource sets the Source stamped on events that arrive without one.
func WithSource(source string) Option {
	return func(b *Bus) {
		if source != "" {
			b.source = source
		}
	}
}

// WithMetrics turns Prometheus recording on or off. It is on by default.
func WithMetrics(enabled bool) Option {
	return func(b *Bus) {
		b.metrics = enabled
	}
}

func defaultLogger() Logger {
	return logger.L
}
