package arraystore

import (
	"log/slog"
	"time"

	"github.com/hupe1980/arraystore/codec"
	"github.com/hupe1980/arraystore/resource"
)

type options struct {
	codec            codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
	resource         resource.Config
	clock            func() time.Time
	blockCacheBytes  int64
	blockSize        int64
}

// Option configures Create and Open.
type Option func(*options)

// WithCodec configures the codec used for the stored schema and for
// ServeQuery messages.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger sets a custom structured logger.
//
// Example:
//
//	logger := arraystore.NewJSONLogger(slog.LevelDebug)
//	arr, err := arraystore.Open(ctx, store, "arrays/a", arraystore.WithLogger(logger))
func WithLogger(l *Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithLogLevel sets the minimum log level on a text logger to stderr.
// Ignored if WithLogger is also given.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		if o.logger == nil {
			o.logger = NewTextLogger(level)
		}
	}
}

// WithResourceConfig sets the memory, worker and I/O limits applied to
// fragment loading and global-order staging.
func WithResourceConfig(cfg resource.Config) Option {
	return func(o *options) {
		o.resource = cfg
	}
}

// WithClock sets the clock that timestamps new fragments.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithBlockCache caches blob reads in an LRU of at most bytes, split into
// blocks of blockSize (blobstore.DefaultBlockSize if <= 0). Cached bytes
// count against the memory limit of WithResourceConfig.
func WithBlockCache(bytes, blockSize int64) Option {
	return func(o *options) {
		o.blockCacheBytes = bytes
		o.blockSize = blockSize
	}
}

func applyOptions(opts []Option) options {
	o := options{
		codec:            codec.Default,
		metricsCollector: NoopMetricsCollector{},
		clock:            time.Now,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	return o
}
