package di

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/config"
	"github.com/goliatone/go-query-cache/library"
	"github.com/goliatone/go-query-cache/pkg/testsupport"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.API.CatalogURL = "http://catalog/api/v2"
	cfg.API.OperationsURL = "http://ops/api/v2"
	cfg.Auth.Token = "tok1"
	return cfg
}

func TestNewContainer(t *testing.T) {
	fake := testsupport.NewFakeTransport()
	cfg := testConfig()

	container, err := NewContainer(cfg, WithTransport(fake), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	defer container.Close()

	if container.Store() == nil {
		t.Error("Container should have a non-nil store")
	}
	if container.Client() == nil {
		t.Error("Container should have a non-nil client")
	}
	if container.Transport() != fake {
		t.Error("Container should use the injected transport")
	}
	if got := container.Identity().Identity(); got != "tok1" {
		t.Errorf("Expected identity %q, got %q", "tok1", got)
	}

	stored := container.Config()
	if stored.API.CatalogURL != cfg.API.CatalogURL {
		t.Errorf("Expected catalog URL %q, got %q", cfg.API.CatalogURL, stored.API.CatalogURL)
	}
	if stored.Cache.Capacity != cfg.Cache.Capacity {
		t.Errorf("Expected capacity %d, got %d", cfg.Cache.Capacity, stored.Cache.Capacity)
	}
}

func TestNewContainerWithDefaults(t *testing.T) {
	container, err := NewContainerWithDefaults(WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	defer container.Close()

	defaults := config.Default()
	if got := container.Config().API.CatalogURL; got != defaults.API.CatalogURL {
		t.Errorf("Expected default catalog URL %q, got %q", defaults.API.CatalogURL, got)
	}
	if container.Identity().Identity() != "" {
		t.Error("Default container should start signed out")
	}
	if container.Transport() == nil {
		t.Error("Default container should build an HTTP transport")
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	cases := map[string]func(*config.Config){
		"no catalog":    func(c *config.Config) { c.API.CatalogURL = "" },
		"bad log level": func(c *config.Config) { c.Logging.Level = "verbose" },
		"no capacity":   func(c *config.Config) { c.Cache.Capacity = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			if _, err := NewContainer(cfg, WithLogOutput(io.Discard)); err == nil {
				t.Error("NewContainer() should fail with invalid config")
			}
		})
	}
}

func TestContainerSingletonBehavior(t *testing.T) {
	container, err := NewContainer(testConfig(), WithTransport(testsupport.NewFakeTransport()), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	defer container.Close()

	if container.Store() != container.Store() {
		t.Error("Store() should return the same instance")
	}
	if container.Client() != container.Client() {
		t.Error("Client() should return the same instance")
	}
	if container.Identity() != container.Identity() {
		t.Error("Identity() should return the same instance")
	}
}

func TestContainerLogsReady(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig()
	cfg.Logging.Level = "debug"

	container, err := NewContainer(cfg, WithTransport(testsupport.NewFakeTransport()), WithLogOutput(&buf))
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	container.Close()

	found := false
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var line map[string]any
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			t.Fatalf("log line is not JSON: %q", raw)
		}
		if line["M"] == "container ready" {
			found = true
			if line["catalog"] != cfg.API.CatalogURL {
				t.Errorf("Expected catalog field %q, got %v", cfg.API.CatalogURL, line["catalog"])
			}
		}
	}
	if !found {
		t.Errorf("Expected a container ready log line, got %s", buf.String())
	}
}

func TestWithLogger(t *testing.T) {
	logger := zap.NewNop()
	container, err := NewContainer(testConfig(), WithLogger(logger), WithTransport(testsupport.NewFakeTransport()))
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	defer container.Close()

	if container.Logger() != logger {
		t.Error("Container should use the injected logger")
	}
}

func TestNewLoggerLevels(t *testing.T) {
	cases := []struct {
		level   string
		debug   bool
		warning bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"error", false, false},
		{"", false, true},
	}

	for _, tc := range cases {
		t.Run(tc.level, func(t *testing.T) {
			logger := NewLogger(config.LoggingConfig{Level: tc.level}, io.Discard)
			if got := logger.Core().Enabled(zap.DebugLevel); got != tc.debug {
				t.Errorf("debug enabled = %v, want %v", got, tc.debug)
			}
			if got := logger.Core().Enabled(zap.WarnLevel); got != tc.warning {
				t.Errorf("warn enabled = %v, want %v", got, tc.warning)
			}
		})
	}
}

func TestContainerPurgesOnLogout(t *testing.T) {
	fake := testsupport.NewFakeTransport()
	fake.Reply(http.MethodGet, "http://catalog/api/v2/books/42", library.Book{ID: 42, Title: "Dune"})

	container, err := NewContainer(testConfig(), WithTransport(fake), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	defer container.Close()

	if _, err := container.Client().Books.Get.Get(context.Background(), 42); err != nil {
		t.Fatalf("Books.Get failed: %v", err)
	}
	if n := len(container.Store().Keys(cache.ForIdentity("tok1"))); n != 1 {
		t.Fatalf("Expected 1 cached key, got %d", n)
	}

	container.Identity().Logout()

	if n := len(container.Store().Keys(nil)); n != 0 {
		t.Errorf("Expected empty store after logout, got %d keys", n)
	}
}

func TestContainerCloseUnbindsCache(t *testing.T) {
	container, err := NewContainer(testConfig(), WithTransport(testsupport.NewFakeTransport()), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}

	key := cache.NewKey(library.ResourceBook, "tok1", int64(42))
	container.Store().Mutate(context.Background(), key, cache.Set(library.Book{ID: 42}), cache.MutateOptions{})

	if err := container.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := container.Close(); err != nil {
		t.Fatalf("second Close() failed: %v", err)
	}

	container.Identity().Logout()
	if !container.Store().Get(key).HasValue {
		t.Error("Closed container should no longer purge on identity changes")
	}
}
