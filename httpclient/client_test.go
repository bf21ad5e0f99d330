package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bar", r.URL.Query().Get("foo"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(nil, nil, nil, false)
	req := NewRequest(http.MethodGet, srv.URL)
	req.Query["foo"] = "bar"

	resp, err := c.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, `{"ok":true}`, string(resp.Body))
}

func TestExecuteEnforceTLSRejectsPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := NewClient(nil, nil, nil, true)
	req := NewRequest(http.MethodGet, srv.URL)

	_, err := c.Execute(context.Background(), req)
	assert.Error(t, err)
}

func TestExecuteResponseSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 100))
	}))
	defer srv.Close()

	c := NewClient(nil, nil, nil, false)
	req := NewRequest(http.MethodGet, srv.URL)
	req.MaxResponseBytes = 10

	_, err := c.Execute(context.Background(), req)
	assert.Error(t, err)
}

func TestExecuteGlobalSemaphoreLimitsConcurrency(t *testing.T) {
	global := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewClient(nil, global, nil, false)
	req := NewRequest(http.MethodGet, srv.URL)

	// With the only global slot taken, Execute waits for it and gives up
	// when its context ends.
	global <- struct{}{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Execute(ctx, req)
	assert.Error(t, err)
	<-global

	_, err = c.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, global, 0)
}

type headerAuth struct{ headers map[string]string }

func (h headerAuth) Headers(ctx context.Context) (map[string]string, error) { return h.headers, nil }

func TestExecuteInjectsAuthHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	c := NewClient(headerAuth{headers: map[string]string{"Authorization": "Bearer tok"}}, nil, nil, false)
	req := NewRequest(http.MethodGet, srv.URL)
	_, err := c.Execute(context.Background(), req)
	require.NoError(t, err)
}
