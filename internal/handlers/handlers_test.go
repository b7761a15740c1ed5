package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easycrawl/catalog-service/internal/database"
	"github.com/easycrawl/catalog-service/internal/jobs"
	"github.com/easycrawl/catalog-service/internal/middleware"
	"github.com/easycrawl/catalog-service/internal/registry"
)

const testKey = "test-key"

type fakeRunner struct {
	mu     sync.Mutex
	calls  []jobs.Request
	result *jobs.Result
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, jobType jobs.Type, parameters string) (*jobs.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, jobs.Request{Type: jobType, Parameters: parameters})
	res := f.result
	if res == nil {
		res = &jobs.Result{Type: jobType, Parameters: parameters, Summary: "ok"}
	}
	return res, f.err
}

type memRegistry struct {
	mu      sync.Mutex
	entries []registry.Entry
}

func (m *memRegistry) LoadEnabled(ctx context.Context) ([]registry.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]registry.Entry(nil), m.entries...), nil
}

func (m *memRegistry) Upsert(ctx context.Context, entries []registry.Entry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return len(entries), nil
}

func (m *memRegistry) AddBrandCandidates(ctx context.Context, keys []string) (int, error) {
	return 0, nil
}

func newTestRouter(t *testing.T, runner JobRunner, ping Pinger) (*gin.Engine, *registry.Cache) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := &memRegistry{entries: []registry.Entry{{Type: registry.TypeBrand, Key: "Samsung", Enabled: true}}}
	cache := registry.NewCache(store, zerolog.Nop())
	writer := registry.NewWriter(store, cache, nil, zerolog.Nop())

	router := gin.New()
	Routes{
		Ping:           ping,
		Cache:          cache,
		Jobs:           NewJobsHandler(runner, zerolog.Nop()),
		Registry:       NewRegistryHandler(cache, writer, zerolog.Nop()),
		APIKey:         testKey,
		TriggerLimiter: middleware.NewKeyedRateLimiter(middleware.RateLimiterConfig{RequestsPerSecond: 100, BurstSize: 100}),
	}.Register(router)
	return router, cache
}

func do(router http.Handler, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(middleware.APIKeyHeader, testKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		ping       Pinger
		wantStatus int
		wantDB     string
	}{
		{name: "connected", ping: func(context.Context) error { return nil }, wantStatus: http.StatusOK, wantDB: "connected"},
		{name: "disconnected", ping: func(context.Context) error { return errors.New("refused") }, wantStatus: http.StatusServiceUnavailable, wantDB: "disconnected"},
		{name: "not configured", wantStatus: http.StatusOK, wantDB: "not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, cache := newTestRouter(t, &fakeRunner{}, tt.ping)
			_, err := cache.Refresh(context.Background())
			require.NoError(t, err)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantStatus, w.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantDB, resp.Database)
			assert.Equal(t, int64(1), resp.RegistryVersion)
			assert.Equal(t, 1, resp.RegistryEntries[string(registry.TypeBrand)])
		})
	}
}

func TestHealthCheckPoolStats(t *testing.T) {
	tests := []struct {
		name  string
		stats PoolStatter
		want  *database.PoolStats
	}{
		{name: "no statter"},
		{name: "pool not connected", stats: func() *database.PoolStats { return nil }},
		{
			name:  "connected pool",
			stats: func() *database.PoolStats { return &database.PoolStats{TotalConns: 3, IdleConns: 2, AcquiredConns: 1, MaxConns: 25} },
			want:  &database.PoolStats{TotalConns: 3, IdleConns: 2, AcquiredConns: 1, MaxConns: 25},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			router := gin.New()
			Routes{Stats: tt.stats}.Register(router)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, http.StatusOK, w.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Pool)
		})
	}
}

func TestTriggerJob(t *testing.T) {
	runner := &fakeRunner{}
	router, _ := newTestRouter(t, runner, nil)

	w := do(router, http.MethodPost, "/internal/jobs/cleanup", bytes.NewBufferString(`{"parameters":"names,duplicates"}`), "application/json")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodPost, "/internal/jobs/match?parameters=smartphones", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var res jobs.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, jobs.TypeMatch, res.Type)

	require.Len(t, runner.calls, 2)
	assert.Equal(t, jobs.Request{Type: jobs.TypeCleanup, Parameters: "names,duplicates"}, runner.calls[0])
	assert.Equal(t, jobs.Request{Type: jobs.TypeMatch, Parameters: "smartphones"}, runner.calls[1])
}

func TestTriggerJobErrors(t *testing.T) {
	t.Run("unknown type", func(t *testing.T) {
		router, _ := newTestRouter(t, &fakeRunner{}, nil)
		w := do(router, http.MethodPost, "/internal/jobs/optimize", nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad body", func(t *testing.T) {
		router, _ := newTestRouter(t, &fakeRunner{}, nil)
		w := do(router, http.MethodPost, "/internal/jobs/match", bytes.NewBufferString(`{"parameters":`), "application/json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("batch failure", func(t *testing.T) {
		runner := &fakeRunner{
			result: &jobs.Result{Type: jobs.TypeMatch, Error: "connection refused"},
			err:    errors.New("connection refused"),
		}
		router, _ := newTestRouter(t, runner, nil)
		w := do(router, http.MethodPost, "/internal/jobs/match", nil, "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "connection refused")
	})

	t.Run("missing api key", func(t *testing.T) {
		router, _ := newTestRouter(t, &fakeRunner{}, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/internal/jobs/match", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRegistryEndpoints(t *testing.T) {
	router, cache := newTestRouter(t, &fakeRunner{}, nil)

	w := do(router, http.MethodPost, "/internal/registry/refresh", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var st RegistryStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, int64(1), st.Version)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "brands.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("type,key,value,enabled\nBrand,Apple,,true\nColour,red,,true\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w = do(router, http.MethodPost, "/internal/registry/import", &body, mw.FormDataContentType())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var imp ImportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &imp))
	assert.Equal(t, 1, imp.Written)
	require.Len(t, imp.Errors, 1)
	assert.Equal(t, 3, imp.Errors[0].Row)
	assert.Equal(t, 2, cache.Snapshot().Counts()[string(registry.TypeBrand)])

	w = do(router, http.MethodGet, "/internal/registry", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"version":2`))

	w = do(router, http.MethodPost, "/internal/registry/import", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
