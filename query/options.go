package query

import (
	"log/slog"
)

type options struct {
	logger *slog.Logger
	reader Reader
	writer Writer
}

// Option configures a Query.
type Option func(*options)

// WithLogger sets the logger. Failures are logged at error level and state
// transitions at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithReader sets the strategy that executes read queries.
func WithReader(r Reader) Option {
	return func(o *options) {
		o.reader = r
	}
}

// WithWriter sets the strategy that executes write queries.
func WithWriter(w Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}
