// Package chi serves the query API: similarity search, health and metrics.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/domain"
	logpkg "github.com/kailas-cloud/docingest/internal/logger"
	"github.com/kailas-cloud/docingest/internal/metrics"
	"github.com/kailas-cloud/docingest/internal/usecase/health"
	"github.com/kailas-cloud/docingest/internal/usecase/search"
)

// ErrorCode is the machine-readable error kind in an ErrorResponse.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest             ErrorCode = "bad_request"
	CodeUnauthorized           ErrorCode = "unauthorized"
	CodeValidationFailed       ErrorCode = "validation_failed"
	CodeVectorDimMismatch      ErrorCode = "vector_dim_mismatch"
	CodeStoreNotFound          ErrorCode = "store_not_found"
	CodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	CodeBackendUnavailable     ErrorCode = "backend_unavailable"
	CodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query    string  `json:"query"`
	K        int     `json:"k,omitempty"`
	MinScore float64 `json:"min_score,omitempty"`
}

// SearchResultItem is one hit.
type SearchResultItem struct {
	Text     string          `json:"text"`
	Metadata domain.Metadata `json:"metadata,omitempty"`
	Score    float64         `json:"score"`
}

// SearchResponse is the body of a successful search.
type SearchResponse struct {
	Items []SearchResultItem `json:"items"`
	Total int                `json:"total"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status health.Status                 `json:"status"`
	Checks map[string]health.CheckResult `json:"checks"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server exposes the search and health services over HTTP.
type Server struct {
	search        *search.Service
	health        *health.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(searchSvc *search.Service, healthSvc *health.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{search: searchSvc, health: healthSvc, logger: logger}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrConfiguration, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusConflict, CodeVectorDimMismatch),
		sentinelHandler(domain.ErrStoreNotFound, http.StatusNotFound, CodeStoreNotFound),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProviderError),
		backendErrorHandler,
	}
	return s
}

// Router builds the chi router with the middleware chain. Empty apiKeys
// disables authentication.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.Post("/search", s.Search)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var body SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	req, err := search.NewRequest(body.Query, body.K, body.MinScore)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	results, err := s.search.Search(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]SearchResultItem, len(results))
	for i, res := range results {
		items[i] = SearchResultItem{
			Text:     res.Document.Text,
			Metadata: res.Document.Metadata,
			Score:    res.Score,
		}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Items: items, Total: len(items)})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != health.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: report.Status, Checks: report.Checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// The client sees the sentinel text, never the wrapped internals.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

func backendErrorHandler(w http.ResponseWriter, err error) bool {
	var be *domain.BackendError
	if !errors.As(err, &be) {
		return false
	}
	writeError(w, http.StatusServiceUnavailable, CodeBackendUnavailable, be.Backend+" unavailable")
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
