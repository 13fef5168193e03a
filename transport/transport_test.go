package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-query-cache/apierr"
)

type book struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

func TestGetSendsBearerAndDecodes(t *testing.T) {
	var gotAuth, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":42,"title":"Dune"}`)
	}))
	defer srv.Close()

	var out book
	err := New().Get(context.Background(), srv.URL+"/books/42", "tok", &out)
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, book{ID: 42, Title: "Dune"}, out)
}

func TestRequestEncodesBody(t *testing.T) {
	var got map[string]any
	var contentType, method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":7,"title":"Emma"}`)
	}))
	defer srv.Close()

	var out book
	err := New().Request(context.Background(), http.MethodPost, srv.URL+"/books", "tok", map[string]any{"title": "Emma"}, &out)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "Emma", got["title"])
	assert.Equal(t, int64(7), out.ID)
}

func TestRequestWithoutIdentity(t *testing.T) {
	err := New().Get(context.Background(), "http://127.0.0.1:1/books", "", nil)
	assert.True(t, apierr.Is(err, apierr.KindUnauthorized))
}

func TestNoContentSkipsDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	out := book{ID: 1}
	err := New().Request(context.Background(), http.MethodDelete, srv.URL+"/books/1", "tok", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.ID)
}

func TestErrorStatusesAreClassified(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   apierr.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, "", apierr.KindUnauthorized},
		{"not found", http.StatusNotFound, `{"message":"book not found"}`, apierr.KindNotFound},
		{"validation", http.StatusBadRequest, `{"message":"bad","errors":[{"field":"isbn","message":"taken"}]}`, apierr.KindValidation},
		{"conflict", http.StatusConflict, `{"message":"copy reserved"}`, apierr.KindConflict},
		{"server", http.StatusServiceUnavailable, "upstream down", apierr.KindServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			err := New().Get(context.Background(), srv.URL, "tok", &book{})
			require.Error(t, err)
			assert.Equal(t, tt.kind, apierr.KindOf(err))
			assert.Equal(t, tt.status, apierr.Status(err))
		})
	}
}

func TestUnreachableServerIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := New(WithTimeout(time.Second)).Get(context.Background(), url, "tok", &book{})
	assert.True(t, apierr.Is(err, apierr.KindNetwork))
	assert.True(t, apierr.IsRetryable(err))
}

func TestUndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "not json")
	}))
	defer srv.Close()

	err := New().Get(context.Background(), srv.URL, "tok", &book{})
	assert.Equal(t, apierr.KindUnknown, apierr.KindOf(err))
}

func TestWithHTTPClient(t *testing.T) {
	h := &http.Client{Timeout: time.Second}
	c := New(WithHTTPClient(h))
	assert.Same(t, h, c.http)
}

func TestTags(t *testing.T) {
	ctx := WithTags(context.Background(), "mutation:create-book", "call:1")
	ctx = WithTags(ctx, "call:1", "", "retry")

	assert.Equal(t, []string{"mutation:create-book", "call:1", "retry"}, TagsFromContext(ctx))
	assert.Nil(t, TagsFromContext(context.Background()))

	tags := TagsFromContext(ctx)
	tags[0] = "changed"
	assert.Equal(t, "mutation:create-book", TagsFromContext(ctx)[0])
}
