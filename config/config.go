// Package config loads the client configuration: defaults, then an optional
// YAML file, then LIBRARY_* environment variables.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/goliatone/go-query-cache/cache/memory"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LIBRARY_"

// Config is the application configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api" envPrefix:"API_"`
	Auth    AuthConfig    `mapstructure:"auth" envPrefix:"AUTH_"`
	Cache   memory.Config `mapstructure:"cache" envPrefix:"CACHE_"`
	Logging LoggingConfig `mapstructure:"logging" envPrefix:"LOG_"`
}

// APIConfig points at the two backend services.
type APIConfig struct {
	CatalogURL    string        `mapstructure:"catalog_url" env:"CATALOG_URL"`
	OperationsURL string        `mapstructure:"operations_url" env:"OPERATIONS_URL"`
	Timeout       time.Duration `mapstructure:"timeout" env:"TIMEOUT"`
}

// AuthConfig describes the identity server (a Keycloak realm).
type AuthConfig struct {
	URL          string `mapstructure:"url" env:"URL"`
	Realm        string `mapstructure:"realm" env:"REALM"`
	ClientID     string `mapstructure:"client_id" env:"CLIENT_ID"`
	ClientSecret string `mapstructure:"client_secret" env:"CLIENT_SECRET"`
	Token        string `mapstructure:"token" env:"TOKEN"`
}

// LoggingConfig selects the log level: debug, info, warn or error.
type LoggingConfig struct {
	Level string `mapstructure:"level" env:"LEVEL"`
}

// Default returns the configuration used for local development.
func Default() Config {
	return Config{
		API: APIConfig{
			CatalogURL:    "http://localhost:5112/api/v2",
			OperationsURL: "http://localhost:5110/api/v2",
			Timeout:       30 * time.Second,
		},
		Auth: AuthConfig{
			URL:      "http://localhost:8080",
			Realm:    "boobook",
			ClientID: "nextjs",
		},
		Cache:   memory.DefaultConfig(),
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path (skipped when empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate implements validation.Validatable.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.API),
		validation.Field(&c.Auth),
		validation.Field(&c.Cache),
		validation.Field(&c.Logging),
	)
}

// Validate implements validation.Validatable.
func (c APIConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.CatalogURL, validation.Required, is.URL),
		validation.Field(&c.OperationsURL, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// Validate implements validation.Validatable.
func (c AuthConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.URL, is.URL),
		validation.Field(&c.Realm, validation.When(c.ClientSecret != "", validation.Required)),
		validation.Field(&c.ClientID, validation.When(c.ClientSecret != "", validation.Required)),
	)
}

// Validate implements validation.Validatable.
func (c LoggingConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.In("debug", "info", "warn", "error")),
	)
}

// TokenURL is the realm's OpenID Connect token endpoint.
func (c AuthConfig) TokenURL() string {
	return strings.TrimRight(c.URL, "/") + "/realms/" + c.Realm + "/protocol/openid-connect/token"
}

// TokenSource returns a client-credentials token source, or nil when no
// client secret is configured.
func (c AuthConfig) TokenSource(ctx context.Context) oauth2.TokenSource {
	if c.ClientSecret == "" {
		return nil
	}
	cc := clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL(),
	}
	return cc.TokenSource(ctx)
}
