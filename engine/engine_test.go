package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve.evalgo.org/otelscrape/config"
	"eve.evalgo.org/otelscrape/store/sqlite"
)

// newTestEngine builds a single-source, dry-run Engine backed by a
// temp-file sqlite store, the same wiring cli/root.go does for the
// sqlite backend but pointed at an httptest server instead of a
// configured baseUrl.
func newTestEngine(t *testing.T, srcFn func(*config.Source)) (*Engine, *sqlite.Store) {
	t.Helper()

	st, err := sqlite.Open(sqlite.DefaultConfig(filepath.Join(t.TempDir(), "fp.db")))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	src := config.Source{
		Name:     "demo",
		Method:   "GET",
		Mode:     "instant",
		EmitLogs: false,
	}
	if srcFn != nil {
		srcFn(&src)
	}

	root := config.Root{
		Scraper: config.Scraper{
			OtelCollectorEndpoint: "localhost:4317",
			DryRun:                true,
			MaxGlobalConcurrency:  4,
		},
		Sources: []config.Source{src},
	}

	eng, err := New(context.Background(), root, st, logrus.New(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Shutdown(context.Background()) })

	return eng, st
}

func TestTickInstantNoAuthEmitsCounters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":1,"userId":7},{"id":2,"userId":7}]`))
	}))
	defer srv.Close()

	eng, _ := newTestEngine(t, func(s *config.Source) {
		s.BaseURL = srv.URL
		s.Endpoint = "/posts"
		s.Counters = []config.CounterSpec{{Name: "posts"}}
		s.Attributes = []config.AttributeSpec{
			{Name: "user_id", DataKey: "userId"},
			{Name: "post_id", DataKey: "id"},
		}
	})

	err := eng.Tick(context.Background(), "demo")
	require.NoError(t, err)

	status, ok := eng.Status("demo")
	require.True(t, ok)
	assert.Equal(t, "ok", status.LastStatus)
	assert.False(t, status.InFlight)
}

func TestTickOverlapSkipsWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	eng, _ := newTestEngine(t, func(s *config.Source) {
		s.BaseURL = srv.URL
		s.Endpoint = "/slow"
		s.OverlapPolicy = "skip"
	})

	done := make(chan error, 1)
	go func() { done <- eng.Tick(context.Background(), "demo") }()

	// Give the first tick time to mark itself in-flight before the
	// second tick's overlap check runs.
	for i := 0; i < 1000; i++ {
		status, _ := eng.Status("demo")
		if status.InFlight {
			break
		}
		time.Sleep(time.Millisecond)
	}

	require.NoError(t, eng.Tick(context.Background(), "demo"))
	status, _ := eng.Status("demo")
	assert.Equal(t, "skipped", status.LastStatus)

	close(release)
	require.NoError(t, <-done)
}

func TestTickResponseErrorOnMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	eng, _ := newTestEngine(t, func(s *config.Source) {
		s.BaseURL = srv.URL
		s.Endpoint = "/broken"
	})

	err := eng.Tick(context.Background(), "demo")
	assert.Error(t, err)

	status, _ := eng.Status("demo")
	assert.Equal(t, "error", status.LastStatus)
	assert.NotEmpty(t, status.LastError)
}

func TestTickDedupSuppressesSecondScrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"A","status":"ok"}`))
	}))
	defer srv.Close()

	eng, _ := newTestEngine(t, func(s *config.Source) {
		s.BaseURL = srv.URL
		s.Endpoint = "/single"
		s.Counters = []config.CounterSpec{{Name: "hits"}}
		s.Dedup = config.DedupConfig{
			Enabled:         true,
			FingerprintMode: "keys",
			FingerprintKeys: []string{"id"},
			TTLSeconds:      3600,
		}
	})

	require.NoError(t, eng.Tick(context.Background(), "demo"))
	require.NoError(t, eng.Tick(context.Background(), "demo"))

	status, _ := eng.Status("demo")
	assert.Equal(t, "ok", status.LastStatus)
}
