package cacheinfra

import (
	"sync"
	"time"

	"github.com/viccon/sturdyc"
)

// windowService remembers which keys were fetched successfully within their
// deduplication interval. One sturdyc client exists per distinct interval, its
// TTL being the interval itself.
type windowService struct {
	cfg Config

	mu      sync.Mutex
	clients map[time.Duration]*sturdyc.Client[time.Time]
}

func newWindowService(cfg Config) *windowService {
	return &windowService{
		cfg:     cfg,
		clients: make(map[time.Duration]*sturdyc.Client[time.Time]),
	}
}

func (w *windowService) client(interval time.Duration) *sturdyc.Client[time.Time] {
	w.mu.Lock()
	defer w.mu.Unlock()

	if c, ok := w.clients[interval]; ok {
		return c
	}

	c := sturdyc.New[time.Time](
		w.cfg.Capacity,
		w.cfg.NumShards,
		interval,
		w.cfg.EvictionPercentage,
		w.cfg.ToSturdycOptions()...,
	)
	w.clients[interval] = c
	return c
}

func (w *windowService) snapshot() []*sturdyc.Client[time.Time] {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]*sturdyc.Client[time.Time], 0, len(w.clients))
	for _, c := range w.clients {
		out = append(out, c)
	}
	return out
}

// Within reports whether key was fetched inside its window.
func (w *windowService) Within(interval time.Duration, key string) bool {
	if interval <= 0 {
		return false
	}
	_, ok := w.client(interval).Get(key)
	return ok
}

// Remember opens a window for key starting at fetchedAt.
func (w *windowService) Remember(interval time.Duration, key string, fetchedAt time.Time) {
	if interval <= 0 {
		return
	}
	w.client(interval).Set(key, fetchedAt)
}

// Forget closes the window for key in every client.
func (w *windowService) Forget(key string) {
	for _, c := range w.snapshot() {
		c.Delete(key)
	}
}
