package fragment

import (
	"log/slog"
	"time"

	"github.com/hupe1980/arraystore/resource"
)

type options struct {
	logger *slog.Logger
	rc     *resource.Controller
	clock  func() time.Time
}

func defaultOptions() options {
	return options{
		logger: slog.New(slog.DiscardHandler),
		clock:  time.Now,
	}
}

// Option configures a Reader or Writer.
type Option func(*options)

// WithLogger sets the logger. Fragments written and loaded are logged at
// debug level.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithResourceController bounds the memory, parallelism and read rate of
// fragment I/O. A nil controller imposes no limits.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithClock sets the time source for fragment timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}
