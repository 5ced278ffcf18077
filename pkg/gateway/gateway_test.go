package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adlens-ai/adlens/pkg/backend"
	sqlitecache "github.com/adlens-ai/adlens/pkg/cache/sqlite"
	"github.com/adlens-ai/adlens/pkg/config"
	"github.com/adlens-ai/adlens/pkg/history"
	"github.com/adlens-ai/adlens/pkg/models"
	"github.com/adlens-ai/adlens/pkg/qa"
	"github.com/adlens-ai/adlens/pkg/quota"
)

type fixture struct {
	srv           *Server
	upstreamCalls *atomic.Int64
}

func setupGateway(t *testing.T, policies []models.QuotaPolicy) fixture {
	t.Helper()
	dir := t.TempDir()

	var calls atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(models.Answer{Text: "ROAS is 3.2x", GeneratedAt: time.Now().UTC()})
	}))
	t.Cleanup(upstream.Close)

	cfg := config.Default()
	cfg.Backends = []config.BackendConfig{{Name: "test", URL: upstream.URL, APIKey: "sk-backend"}}

	store, err := sqlitecache.New(filepath.Join(dir, "answers.db"), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	hist, err := history.New(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = hist.Close() })

	var checker qa.QuotaChecker
	if len(policies) > 0 {
		checker = quota.New(policies, hist)
	}

	svc := qa.NewService(backend.New(cfg.Backends), nil, store, hist, checker, time.Minute)
	return fixture{srv: New(cfg, svc, store, nil), upstreamCalls: &calls}
}

func ask(t *testing.T, srv *Server, workspace, question, key string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(models.AskRequest{WorkspaceID: workspace, Question: question})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/insights/ask", strings.NewReader(string(body)))
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestAskMissThenHit(t *testing.T) {
	f := setupGateway(t, nil)

	w := ask(t, f.srv, "ws_1", "What is my ROAS?", "sk-client")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	if got := w.Header().Get("X-AdLens-Cache"); got != "miss" {
		t.Errorf("expected miss, got %s", got)
	}

	var resp models.AskResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer == nil || resp.Answer.Text != "ROAS is 3.2x" {
		t.Errorf("unexpected answer: %+v", resp.Answer)
	}
	if resp.Source != models.SourceBackend {
		t.Errorf("expected backend source, got %s", resp.Source)
	}

	// Same question, different case: served from cache.
	w = ask(t, f.srv, "ws_1", "what is my ROAS?  ", "sk-client")
	if got := w.Header().Get("X-AdLens-Cache"); got != "hit" {
		t.Errorf("expected hit, got %s", got)
	}
	if f.upstreamCalls.Load() != 1 {
		t.Errorf("expected 1 upstream call, got %d", f.upstreamCalls.Load())
	}
}

func TestAskRequiresAuth(t *testing.T) {
	f := setupGateway(t, nil)
	w := ask(t, f.srv, "ws_1", "q", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAskValidatesBody(t *testing.T) {
	f := setupGateway(t, nil)

	w := ask(t, f.srv, "", "q", "sk-client")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing workspace, got %d", w.Code)
	}

	w = ask(t, f.srv, "ws_1", "   ", "sk-client")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for blank question, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/insights/ask", strings.NewReader("{broken"))
	req.Header.Set("Authorization", "Bearer sk-client")
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid JSON, got %d", rec.Code)
	}
}

func TestAskQuotaExceeded(t *testing.T) {
	f := setupGateway(t, []models.QuotaPolicy{
		{Scope: "*", MaxQuestions: 1, Period: models.QuotaDaily},
	})

	// First question consumes the quota.
	if w := ask(t, f.srv, "ws_1", "first question", "sk-client"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	// A different question needs the backend again and is rejected.
	w := ask(t, f.srv, "ws_1", "second question", "sk-client")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d: %s", w.Code, w.Body)
	}

	// The cached first question is still free.
	if w := ask(t, f.srv, "ws_1", "first question", "sk-client"); w.Code != http.StatusOK {
		t.Errorf("expected cached answer despite quota, got %d", w.Code)
	}
}

func TestInvalidate(t *testing.T) {
	f := setupGateway(t, nil)

	_ = ask(t, f.srv, "ws_1", "q", "sk-client")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/insights/invalidate",
		strings.NewReader(`{"workspace_id":"ws_1"}`))
	req.Header.Set("Authorization", "Bearer sk-client")
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	// Both cache layers dropped: the next ask goes upstream again.
	resp := ask(t, f.srv, "ws_1", "q", "sk-client")
	if got := resp.Header().Get("X-AdLens-Cache"); got != "miss" {
		t.Errorf("expected miss after invalidation, got %s", got)
	}
	if f.upstreamCalls.Load() != 2 {
		t.Errorf("expected 2 upstream calls, got %d", f.upstreamCalls.Load())
	}
}

func TestStats(t *testing.T) {
	f := setupGateway(t, nil)

	_ = ask(t, f.srv, "ws_1", "q", "sk-client")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/insights/stats", nil)
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var out struct {
		Cache models.CacheStats  `json:"cache"`
		Store *models.StoreStats `json:"store"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Cache.Valid != 1 {
		t.Errorf("expected 1 valid cache entry, got %+v", out.Cache)
	}
	if out.Store == nil || out.Store.Entries != 1 {
		t.Errorf("expected 1 store entry, got %+v", out.Store)
	}
}

func TestHealthz(t *testing.T) {
	f := setupGateway(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
