// Package memory provides the default in-process cache.Store.
package memory

import (
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-query-cache/apierr"
	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/internal/cacheinfra"
)

// Config exposes the store sizing options.
type Config struct {
	Capacity           int           `mapstructure:"capacity" env:"CAPACITY"`
	NumShards          int           `mapstructure:"num_shards" env:"NUM_SHARDS"`
	EvictionPercentage int           `mapstructure:"eviction_percentage" env:"EVICTION_PERCENTAGE"`
	EvictionInterval   time.Duration `mapstructure:"eviction_interval" env:"EVICTION_INTERVAL"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// Option customizes the store built by New.
type Option = cacheinfra.Option

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return cacheinfra.WithLogger(logger)
}

// WithClock overrides the store time source.
func WithClock(now func() time.Time) Option {
	return cacheinfra.WithClock(now)
}

// New constructs the default store. Only network and server errors are
// retried automatically; override with WithRetryClassifier.
func New(cfg Config, opts ...Option) (cache.Store, error) {
	all := append([]Option{cacheinfra.WithRetryClassifier(apierr.IsRetryable)}, opts...)
	return cacheinfra.NewStore(cfg.toInternal(), all...)
}

// WithRetryClassifier decides which fetch failures are retried.
func WithRetryClassifier(fn func(error) bool) Option {
	return cacheinfra.WithRetryClassifier(fn)
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
