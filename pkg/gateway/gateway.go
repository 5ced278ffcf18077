// Package gateway exposes the insights ask path over HTTP, fronting the
// cache, dedup, quota, and audit layers.
package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adlens-ai/adlens/pkg/audit"
	sqlitecache "github.com/adlens-ai/adlens/pkg/cache/sqlite"
	"github.com/adlens-ai/adlens/pkg/config"
	"github.com/adlens-ai/adlens/pkg/models"
	"github.com/adlens-ai/adlens/pkg/qa"
	"github.com/adlens-ai/adlens/pkg/quota"
)

// Server is the AdLens insights gateway.
type Server struct {
	cfg     *config.Config
	svc     *qa.Service
	store   *sqlitecache.Store
	auditor *audit.Logger
	mux     *http.ServeMux
}

// New creates a gateway Server wired with all dependencies. store and
// auditor may be nil.
func New(cfg *config.Config, svc *qa.Service, store *sqlitecache.Store, auditor *audit.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		store:   store,
		auditor: auditor,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("/api/v1/insights/ask", s.handleAsk)
	s.mux.HandleFunc("/api/v1/insights/invalidate", s.handleInvalidate)
	s.mux.HandleFunc("/api/v1/insights/stats", s.handleStats)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the gateway with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("adlens gateway listening on %s", s.cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return g.Wait()
}

// cacheHeader maps an answer source to the X-AdLens-Cache header value.
func cacheHeader(source models.AnswerSource) string {
	switch source {
	case models.SourceCache:
		return "hit"
	case models.SourceShared:
		return "shared"
	case models.SourceStore:
		return "store"
	default:
		return "miss"
	}
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	clientKey := extractAPIKey(r)
	if clientKey == "" {
		writeJSONError(w, http.StatusUnauthorized, "missing API key")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	r.Body.Close()

	var req models.AskRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WorkspaceID == "" || strings.TrimSpace(req.Question) == "" {
		writeJSONError(w, http.StatusBadRequest, "workspace_id and question are required")
		return
	}

	reqStart := time.Now()

	answer, source, err := s.svc.Ask(r.Context(), req.WorkspaceID, req.Question)

	status := http.StatusOK
	if err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			status = http.StatusTooManyRequests
			writeJSONError(w, status, "ask quota exceeded")
		} else {
			status = http.StatusBadGateway
			log.Printf("ask failed for %s: %v", req.WorkspaceID, err)
			writeJSONError(w, status, "insights backend unavailable")
		}
		s.logAudit(r, clientKey, req, nil, source, status, reqStart)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-AdLens-Cache", cacheHeader(source))
	_ = json.NewEncoder(w).Encode(models.AskResponse{Answer: answer, Source: source})

	s.logAudit(r, clientKey, req, answer, source, status, reqStart)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if extractAPIKey(r) == "" {
		writeJSONError(w, http.StatusUnauthorized, "missing API key")
		return
	}

	var req struct {
		WorkspaceID string `json:"workspace_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkspaceID == "" {
		writeJSONError(w, http.StatusBadRequest, "workspace_id is required")
		return
	}

	s.svc.Cache().InvalidateScope(req.WorkspaceID)
	if s.store != nil {
		if err := s.store.InvalidateScope(req.WorkspaceID); err != nil {
			log.Printf("store invalidate %s: %v", req.WorkspaceID, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"invalidated":%q}`, req.WorkspaceID)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	out := struct {
		Cache models.CacheStats  `json:"cache"`
		Store *models.StoreStats `json:"store,omitempty"`
	}{
		Cache: s.svc.Cache().Stats(),
	}
	if s.store != nil {
		stats, err := s.store.Stats()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "stats unavailable")
			return
		}
		out.Store = &stats
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) logAudit(r *http.Request, clientKey string, req models.AskRequest, answer *models.Answer, source models.AnswerSource, status int, reqStart time.Time) {
	if s.auditor == nil {
		return
	}

	keyHash, keyPrefix := audit.HashAPIKey(clientKey)
	entry := models.AuditEntry{
		RequestID:    requestID(r),
		APIKeyHash:   keyHash,
		APIKeyPrefix: keyPrefix,
		Scope:        req.WorkspaceID,
		Question:     req.Question,
		Source:       source,
		StatusCode:   status,
		LatencyMs:    time.Since(reqStart).Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	}
	if answer != nil {
		entry.Answer = answer.Text
	}
	go func() {
		if err := s.auditor.Log(context.Background(), entry); err != nil {
			log.Printf("audit log error: %v", err)
		}
	}()
}

// requestID uses the client-supplied header or generates one like
// req_20260830_a3f9c2.
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	b := make([]byte, 3)
	rand.Read(b)
	return fmt.Sprintf("req_%s_%s", time.Now().UTC().Format("20060102"), hex.EncodeToString(b))
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("x-api-key"); key != "" {
		return key
	}
	return ""
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"adlens_error","code":%d}}`, message, code)
}
