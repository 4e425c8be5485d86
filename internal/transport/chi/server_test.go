package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/usecase/health"
	"github.com/kailas-cloud/docingest/internal/usecase/search"
	"github.com/kailas-cloud/docingest/internal/vectorstore"
)

// --- Mocks ---

type mockStore struct {
	results []vectorstore.Result
	err     error
	lastK   int
}

func (m *mockStore) SimilaritySearch(_ context.Context, _ string, k int) ([]vectorstore.Result, error) {
	m.lastK = k
	return m.results, m.err
}

func newTestServer(store *mockStore, pingErr error) *Server {
	healthSvc := health.New(health.PingFunc(func(context.Context) error { return pingErr }), nil)
	return NewServer(search.New(store), healthSvc, zap.NewNop())
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&e); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return e
}

// --- Tests ---

func TestSearch_OK(t *testing.T) {
	store := &mockStore{results: []vectorstore.Result{{
		Document: domain.NewDocument("useState returns a pair", domain.Metadata{domain.MetaTitle: "hooks.md"}),
		Score:    0.83,
	}}}
	h := newTestServer(store, nil).Router(nil)

	rr := doJSON(t, h, http.MethodPost, "/search", `{"query":"state hook","k":2}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}

	var resp SearchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Items[0].Text != "useState returns a pair" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Items[0].Metadata.String(domain.MetaTitle) != "hooks.md" {
		t.Errorf("metadata = %v", resp.Items[0].Metadata)
	}
	if store.lastK != 2 {
		t.Errorf("k = %d, want 2", store.lastK)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestSearch_DefaultK(t *testing.T) {
	store := &mockStore{}
	h := newTestServer(store, nil).Router(nil)

	rr := doJSON(t, h, http.MethodPost, "/search", `{"query":"x"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if store.lastK != search.DefaultTopK {
		t.Errorf("k = %d, want %d", store.lastK, search.DefaultTopK)
	}
}

func TestSearch_BadRequests(t *testing.T) {
	h := newTestServer(&mockStore{}, nil).Router(nil)

	tests := []struct {
		name string
		body string
		code ErrorCode
	}{
		{"malformed json", `{"query":`, CodeBadRequest},
		{"empty query", `{"query":""}`, CodeValidationFailed},
		{"k too large", `{"query":"x","k":1000}`, CodeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, h, http.MethodPost, "/search", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rr.Code)
			}
			if e := decodeError(t, rr); e.Code != tt.code {
				t.Errorf("code = %s, want %s", e.Code, tt.code)
			}
		})
	}
}

func TestSearch_DomainErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   ErrorCode
	}{
		{"dim mismatch", &domain.DimensionMismatchError{Expected: 1536, Actual: 768}, http.StatusConflict, CodeVectorDimMismatch},
		{"store not found", domain.ErrStoreNotFound, http.StatusNotFound, CodeStoreNotFound},
		{"embedding provider", domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProviderError},
		{"backend", &domain.BackendError{Backend: "elasticsearch", Op: "search", Err: errors.New("eof")},
			http.StatusServiceUnavailable, CodeBackendUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(&mockStore{err: tt.err}, nil).Router(nil)
			rr := doJSON(t, h, http.MethodPost, "/search", `{"query":"x"}`)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			e := decodeError(t, rr)
			if e.Code != tt.code {
				t.Errorf("code = %s, want %s", e.Code, tt.code)
			}
			if strings.Contains(e.Message, "eof") || strings.Contains(e.Message, "boom") {
				t.Errorf("message leaks internals: %q", e.Message)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	rr := doJSON(t, newTestServer(&mockStore{}, nil).Router([]string{"secret"}), http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != health.Healthy || resp.Checks["store"] != health.CheckOK {
		t.Errorf("unexpected health: %+v", resp)
	}

	rr = doJSON(t, newTestServer(&mockStore{}, errors.New("down")).Router(nil), http.MethodGet, "/health", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d", rr.Code)
	}
}

func TestRouter_AuthRequiredForSearch(t *testing.T) {
	h := newTestServer(&mockStore{}, nil).Router([]string{"secret"})

	rr := doJSON(t, h, http.MethodPost, "/search", `{"query":"x"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"x"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("authorized status = %d", rr.Code)
	}
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	h := newTestServer(&mockStore{}, nil).Router(nil)

	if rr := doJSON(t, h, http.MethodGet, "/nope", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d", rr.Code)
	}
	if rr := doJSON(t, h, http.MethodGet, "/search", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /search status = %d", rr.Code)
	}
}

func TestJSONRecoverer(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := JSONRecoverer(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rr := doJSON(t, h, http.MethodGet, "/search", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != CodeInternalError {
		t.Errorf("code = %s", e.Code)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Error("expected panic to be logged")
	}
}

func TestWideEventMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := newTestServer(&mockStore{}, nil)
	h.logger = zap.New(core)

	rr := doJSON(t, h.Router(nil), http.MethodPost, "/search", `{"query":"x"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	entries := logs.FilterMessage("http_request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one canonical line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["path"] != "/search" || fields["status"] != int64(http.StatusOK) {
		t.Errorf("unexpected fields: %v", fields)
	}
	if fields["request_id"] == "" {
		t.Error("expected request_id field")
	}
}
