package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/unisearch/internal/domain"
	domanalytics "github.com/kailas-cloud/unisearch/internal/domain/analytics"
	"github.com/kailas-cloud/unisearch/internal/domain/manifest"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
	"github.com/kailas-cloud/unisearch/internal/domain/search/query"
	"github.com/kailas-cloud/unisearch/internal/domain/search/result"
	"github.com/kailas-cloud/unisearch/internal/logger"
	healthuc "github.com/kailas-cloud/unisearch/internal/usecase/health"
	"github.com/kailas-cloud/unisearch/internal/usecase/indexing"
)

// Headers set by the upstream gateway after authentication and tenancy resolution.
const (
	HeaderTenantID       = "X-Tenant-ID"
	HeaderUserID         = "X-User-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
)

const (
	maxBodyBytes       = 64 << 10
	defaultHistorySize = 10
	maxHistorySize     = 100
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the search engine over HTTP.
type Server struct {
	search        Searcher
	analytics     Analytics
	index         Indexer
	health        HealthChecker
	defaultLimit  int
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// Deps are the services behind the handlers. Index and Analytics can be nil; their
// routes answer 503 then.
type Deps struct {
	Search    Searcher
	Analytics Analytics
	Index     Indexer
	Health    HealthChecker
}

// NewServer creates an HTTP API server. defaultLimit applies when a search omits limit.
func NewServer(deps Deps, defaultLimit int, logger *zap.Logger) *Server {
	if defaultLimit <= 0 {
		defaultLimit = query.DefaultLimit
	}
	s := &Server{
		search:       deps.Search,
		analytics:    deps.Analytics,
		index:        deps.Index,
		health:       deps.Health,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
	s.errorHandlers = []errorHandler{
		validationHandler,
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, CodeBadRequest),
		sentinelHandler(domain.ErrTenantRequired, http.StatusBadRequest, domain.CodeInvalidTenant),
		sentinelHandler(domain.ErrUnknownModule, http.StatusBadRequest, domain.CodeInvalidModule),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrRebuildInProgress, http.StatusConflict, CodeRebuildInProgress),
		sentinelHandler(domain.ErrIndexNotReady, http.StatusServiceUnavailable, CodeIndexNotReady),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProviderError),
		sentinelHandler(domain.ErrAdapterFailure, http.StatusBadGateway, CodeAdapterFailure),
		sentinelHandler(domain.ErrPersistenceFailure, http.StatusInternalServerError, CodePersistenceFailure),
	}
	return s
}

// Register mounts every route on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.Search)
		r.Get("/suggest", s.Suggest)
		r.Post("/clicks", s.Click)
		r.Route("/index", func(r chi.Router) {
			r.Post("/rebuild", s.Rebuild)
			r.Post("/modules/{module}/update", s.UpdateModule)
			r.Get("/manifest", s.Manifest)
		})
	})
}

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Query   string        `json:"query"`
	Modules []string      `json:"modules,omitempty"`
	Limit   *int          `json:"limit,omitempty"`
	Filters query.Filters `json:"filters"`
}

// Search handles POST /api/v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}
	var req SearchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	limit := s.defaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}

	spec, err := query.New(req.Query, tenantID, req.Modules, limit, req.Filters)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	resp, err := s.search.Search(r.Context(), spec, r.Header.Get(HeaderUserID))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if resp.Results == nil {
		resp.Results = []result.Ranked{}
	}
	w.Header().Set("X-Correlation-ID", resp.CorrelationID)
	writeJSON(w, http.StatusOK, resp)
}

// SuggestResponse is the body returned by GET /api/v1/suggest.
type SuggestResponse struct {
	Suggestions []string `json:"suggestions"`
}

// Suggest handles GET /api/v1/suggest?prefix=&limit=.
func (s *Server) Suggest(w http.ResponseWriter, r *http.Request) {
	if s.analytics == nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "analytics disabled")
		return
	}
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}
	limit, ok := intParam(w, r, "limit", 0)
	if !ok {
		return
	}
	list, err := s.analytics.Suggest(r.Context(), tenantID, r.URL.Query().Get("prefix"), limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuggestResponse{Suggestions: list})
}

// ClickRequest is the body of POST /api/v1/clicks.
type ClickRequest struct {
	CorrelationID string `json:"correlation_id"`
	EntityType    string `json:"entity_type"`
	EntityID      string `json:"entity_id"`
	Position      int    `json:"position"`
}

// Click handles POST /api/v1/clicks.
func (s *Server) Click(w http.ResponseWriter, r *http.Request) {
	if s.analytics == nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "analytics disabled")
		return
	}
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}
	var req ClickRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.analytics.Click(r.Context(), domanalytics.Click{
		CorrelationID: req.CorrelationID,
		TenantID:      tenantID,
		UserID:        r.Header.Get(HeaderUserID),
		EntityType:    module.Module(req.EntityType),
		EntityID:      req.EntityID,
		Position:      req.Position,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Rebuild handles POST /api/v1/index/rebuild?scope=. The call blocks until the run ends.
func (s *Server) Rebuild(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "indexing disabled")
		return
	}
	scope, ok := scopeParam(w, r)
	if !ok {
		return
	}
	ctx := s.longRunning(w, r)
	m, err := s.index.Rebuild(ctx, scope, r.Header.Get(HeaderIdempotencyKey))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// UpdateModule handles POST /api/v1/index/modules/{module}/update?scope=.
func (s *Server) UpdateModule(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "indexing disabled")
		return
	}
	m, err := module.Parse(chi.URLParam(r, "module"))
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidModule, err.Error())
		return
	}
	scope, ok := scopeParam(w, r)
	if !ok {
		return
	}
	ctx := s.longRunning(w, r)
	out, err := s.index.Update(ctx, scope, m, r.Header.Get(HeaderIdempotencyKey))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ManifestResponse is the body returned by GET /api/v1/index/manifest.
type ManifestResponse struct {
	Scope   manifest.Scope       `json:"scope"`
	Live    *manifest.Manifest   `json:"live"`
	History []manifest.Manifest  `json:"history"`
	Runs    []indexing.RunStatus `json:"runs"`
}

// Manifest handles GET /api/v1/index/manifest?scope=&history=.
func (s *Server) Manifest(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "indexing disabled")
		return
	}
	scope, ok := scopeParam(w, r)
	if !ok {
		return
	}
	n, ok := intParam(w, r, "history", defaultHistorySize)
	if !ok {
		return
	}
	if n < 0 || n > maxHistorySize {
		writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("history must be between 0 and %d", maxHistorySize))
		return
	}

	resp := ManifestResponse{Scope: scope, History: []manifest.Manifest{}, Runs: []indexing.RunStatus{}}
	live, err := s.index.Live(scope)
	switch {
	case err == nil:
		resp.Live = &live
	case !errors.Is(err, domain.ErrIndexNotReady):
		s.handleDomainError(w, r, err)
		return
	}
	if n > 0 {
		history, err := s.index.History(scope, n)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		resp.History = append(resp.History, history...)
	}
	for _, st := range s.index.Status() {
		if st.Scope == scope {
			resp.Runs = append(resp.Runs, st)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthResponse is the body returned by GET /health.
type HealthResponse struct {
	Status healthuc.Status                 `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}

// HealthCheck handles GET /health. Degraded still answers 200: queries are served.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: report.Status, Checks: report.Checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// longRunning lifts the server write deadline for an index run and detaches it from the
// client connection, so a dropped client does not abort a half-built generation.
func (s *Server) longRunning(w http.ResponseWriter, r *http.Request) context.Context {
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		logger.FromContext(r.Context()).Debug("write deadline not adjustable", zap.Error(err))
	}
	return context.WithoutCancel(r.Context())
}

func (s *Server) tenant(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get(HeaderTenantID)
	id, err := strconv.ParseInt(raw, 10, 64)
	if raw == "" || err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidTenant, HeaderTenantID+" header must be a positive integer")
		return 0, false
	}
	return id, true
}

func scopeParam(w http.ResponseWriter, r *http.Request) (manifest.Scope, bool) {
	raw := r.URL.Query().Get("scope")
	if raw == "" {
		return manifest.Global, true
	}
	scope, err := manifest.ParseScope(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidScope, err.Error())
		return "", false
	}
	return scope, true
}

func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, name+" must be an integer")
		return 0, false
	}
	return n, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
