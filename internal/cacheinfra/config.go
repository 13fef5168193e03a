package cacheinfra

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/viccon/sturdyc"
)

// Config holds the sizing of the sturdyc clients that back deduplication windows.
type Config struct {
	// Capacity defines the maximum number of window records per client.
	Capacity int

	// NumShards determines the number of shards per client.
	// Higher values improve concurrency but increase memory overhead.
	NumShards int

	// EvictionPercentage specifies what percentage of records to evict
	// when a client reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often expired records are swept.
	// Zero value uses the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          64,
		EvictionPercentage: 10,
	}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
	)
}

// ToSturdycOptions converts the Config to sturdyc options.
// Capacity, NumShards and EvictionPercentage go to sturdyc.New directly.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}
