package di

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/goliatone/go-query-cache/auth"
	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/cache/memory"
	"github.com/goliatone/go-query-cache/config"
	"github.com/goliatone/go-query-cache/library"
	"github.com/goliatone/go-query-cache/transport"
)

// Container wires the client components.
// It owns one store, one identity provider and one transport, and builds the
// library client on top of them.
type Container struct {
	config    config.Config
	logger    *zap.Logger
	store     cache.Store
	provider  *auth.Provider
	transport transport.Transport
	client    *library.Client
	unbind    func()
}

// Option customizes a Container.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	transport transport.Transport
	output    io.Writer
}

// WithLogger replaces the logger built from the configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTransport replaces the HTTP transport.
func WithTransport(tr transport.Transport) Option {
	return func(o *options) {
		o.transport = tr
	}
}

// WithLogOutput sets where the configured logger writes. Defaults to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) {
		o.output = w
	}
}

// NewContainer creates a container from cfg.
func NewContainer(cfg config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{output: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = NewLogger(cfg.Logging, o.output)
	}

	store, err := memory.New(cfg.Cache, memory.WithLogger(logger.Named("cache")))
	if err != nil {
		return nil, fmt.Errorf("create cache store: %w", err)
	}

	providerOpts := []auth.Option{
		auth.WithLogger(logger.Named("auth")),
		auth.WithIdentity(cfg.Auth.Token),
	}
	if ts := cfg.Auth.TokenSource(context.Background()); ts != nil {
		providerOpts = append(providerOpts, auth.WithTokenSource(ts))
	}
	provider := auth.NewProvider(providerOpts...)

	tr := o.transport
	if tr == nil {
		tr = transport.New(
			transport.WithTimeout(cfg.API.Timeout),
			transport.WithLogger(logger.Named("transport")),
		)
	}

	c := &Container{
		config:    cfg,
		logger:    logger,
		store:     store,
		provider:  provider,
		transport: tr,
	}

	c.unbind = auth.BindCache(provider, store, logger.Named("auth"))
	c.client = library.New(store, provider, tr, library.Endpoints{
		Catalog:    cfg.API.CatalogURL,
		Operations: cfg.API.OperationsURL,
	}, library.WithLogger(logger))

	logger.Info("container ready",
		zap.String("catalog", cfg.API.CatalogURL),
		zap.String("operations", cfg.API.OperationsURL),
	)

	return c, nil
}

// NewContainerWithDefaults creates a container from config.Default.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(config.Default(), opts...)
}

// NewLogger builds a JSON logger at the configured level. Unknown levels log at info.
func NewLogger(cfg config.LoggingConfig, w io.Writer) *zap.Logger {
	level := zapcore.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core, zap.AddCaller())
}

// Config returns the configuration the container was built from.
func (c *Container) Config() config.Config {
	return c.config
}

// Logger returns the root logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Store returns the shared cache store.
func (c *Container) Store() cache.Store {
	return c.store
}

// Identity returns the identity provider.
func (c *Container) Identity() *auth.Provider {
	return c.provider
}

// Transport returns the transport used by the client.
func (c *Container) Transport() transport.Transport {
	return c.transport
}

// Client returns the library client.
func (c *Container) Client() *library.Client {
	return c.client
}

// Close detaches the cache from the identity provider and flushes the logger.
func (c *Container) Close() error {
	if c.unbind != nil {
		c.unbind()
		c.unbind = nil
	}
	_ = c.logger.Sync()
	return nil
}
