package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/goliatone/go-query-cache/apierr"
	"github.com/goliatone/go-query-cache/transport"
)

var _ transport.Transport = (*FakeTransport)(nil)

// Call is one request seen by a FakeTransport.
type Call struct {
	Method   string
	URL      string
	Identity string
	Body     any
}

type reply struct {
	value any
	err   error
}

// FakeTransport answers requests from canned replies keyed by method and URL.
// Unknown routes fail with a not found error. Values are passed through JSON,
// so callers decode them the way they would decode a real response.
type FakeTransport struct {
	mu      sync.Mutex
	replies map[string]reply
	calls   []Call
	gates   map[string]chan struct{}
}

// NewFakeTransport creates an empty FakeTransport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		replies: make(map[string]reply),
		gates:   make(map[string]chan struct{}),
	}
}

func route(method, url string) string {
	return method + " " + url
}

// Reply makes method url answer with value.
func (f *FakeTransport) Reply(method, url string, value any) *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[route(method, url)] = reply{value: value}
	return f
}

// Fail makes method url fail with err.
func (f *FakeTransport) Fail(method, url string, err error) *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[route(method, url)] = reply{err: err}
	return f
}

// Hold blocks method url until the returned release func is called.
func (f *FakeTransport) Hold(method, url string) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[route(method, url)] = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { close(gate) })
	}
}

// Calls returns every request seen so far.
func (f *FakeTransport) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Count returns how many times method url was requested.
func (f *FakeTransport) Count(method, url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method && c.URL == url {
			n++
		}
	}
	return n
}

// Get implements transport.Transport.
func (f *FakeTransport) Get(ctx context.Context, url, identity string, out any) error {
	return f.Request(ctx, http.MethodGet, url, identity, nil, out)
}

// Request implements transport.Transport.
func (f *FakeTransport) Request(ctx context.Context, method, url, identity string, body, out any) error {
	if identity == "" {
		return apierr.New(apierr.KindUnauthorized, "no identity provided")
	}

	key := route(method, url)

	f.mu.Lock()
	f.calls = append(f.calls, Call{Method: method, URL: url, Identity: identity, Body: body})
	gate := f.gates[key]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return apierr.Network(ctx.Err(), url)
		}
	}

	f.mu.Lock()
	r, ok := f.replies[key]
	f.mu.Unlock()

	if !ok {
		return apierr.New(apierr.KindNotFound, fmt.Sprintf("no reply for %s", key))
	}
	if r.err != nil {
		return r.err
	}
	if out == nil || r.value == nil {
		return nil
	}

	raw, err := json.Marshal(r.value)
	if err != nil {
		return fmt.Errorf("encode reply for %s: %w", key, err)
	}
	return json.Unmarshal(raw, out)
}
