package embedding

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/domain"
)

type mockEmbedder struct {
	result     domain.EmbeddingResult
	err        error
	batchErr   error
	batchSizes []int
	embedCalls int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.embedCalls++
	return m.result, m.err
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchSizes = append(m.batchSizes, len(texts))
	if m.batchErr != nil {
		return domain.BatchEmbeddingResult{}, m.batchErr
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = m.result.Embedding
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: m.result.PromptTokens * len(texts),
		TotalTokens:  m.result.TotalTokens * len(texts),
	}, nil
}

// singleEmbedder has no batch call.
type singleEmbedder struct {
	calls int
}

func (s *singleEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	s.calls++
	return domain.EmbeddingResult{Embedding: []float32{1}, TotalTokens: 1}, nil
}

func TestParseName(t *testing.T) {
	tests := []struct {
		in, provider, model string
	}{
		{"openai_text-embedding-ada-002", "openai", "text-embedding-ada-002"},
		{"huggingface_sentence-transformers/all-mpnet-base-v2", "huggingface", "sentence-transformers/all-mpnet-base-v2"},
		{"azure_openai_text-embedding-3-small", "azure_openai", "text-embedding-3-small"},
		{"text-embedding-3-large", "", "text-embedding-3-large"},
		{"openai_", "", "openai_"},
	}
	for _, tt := range tests {
		p, m := ParseName(tt.in)
		if p != tt.provider || m != tt.model {
			t.Errorf("ParseName(%q) = %q, %q; want %q, %q", tt.in, p, m, tt.provider, tt.model)
		}
	}
}

func TestResolveModel(t *testing.T) {
	probe := &mockEmbedder{result: domain.EmbeddingResult{Embedding: make([]float32, 42)}}

	tests := []struct {
		name      string
		model     string
		dims      int
		embedder  domain.Embedder
		wantDims  int
		wantProbe int
	}{
		{"configured dims win", "text-embedding-ada-002", 256, probe, 256, 0},
		{"known model", "text-embedding-ada-002", 0, probe, 1536, 0},
		{"known model with org prefix", "sentence-transformers/all-mpnet-base-v2", 0, probe, 768, 0},
		{"unknown model is probed", "custom-model", 0, probe, 42, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe.embedCalls = 0
			m, err := ResolveModel(context.Background(), tt.model, tt.dims, tt.embedder)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.Dimensions() != tt.wantDims || m.ModelName() != tt.model {
				t.Errorf("got %+v", m)
			}
			if probe.embedCalls != tt.wantProbe {
				t.Errorf("probe calls = %d, want %d", probe.embedCalls, tt.wantProbe)
			}
		})
	}
}

func TestResolveModel_Errors(t *testing.T) {
	boom := errors.New("unreachable")

	if _, err := ResolveModel(context.Background(), "", 0, nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("empty model: %v", err)
	}
	if _, err := ResolveModel(context.Background(), "x", -1, nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("negative dims: %v", err)
	}
	if _, err := ResolveModel(context.Background(), "custom", 0, nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("unknown model without embedder: %v", err)
	}
	if _, err := ResolveModel(context.Background(), "custom", 0, &mockEmbedder{err: boom}); !errors.Is(err, boom) {
		t.Errorf("probe failure: %v", err)
	}
	if _, err := ResolveModel(context.Background(), "custom", 0, &mockEmbedder{}); !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("empty probe vector: %v", err)
	}
}

func TestInstrumentedEmbedder_Embed(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}}}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", zap.NewNop())

	result, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 {
		t.Fatalf("expected 3 dimensions, got %d", len(result.Embedding))
	}
}

func TestInstrumentedEmbedder_EmbedError(t *testing.T) {
	inner := &mockEmbedder{err: domain.ErrEmbeddingProviderError}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", nil)

	_, err := p.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestInstrumentedEmbedder_BatchSplitsRequests(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 2}, PromptTokens: 3, TotalTokens: 3}}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", zap.NewNop()).WithBatchSize(2)

	res, err := p.BatchEmbed(context.Background(), []string{"a", "b", "c", "d", "e"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 5 {
		t.Fatalf("expected 5 embeddings, got %d", len(res.Embeddings))
	}
	if res.TotalTokens != 15 {
		t.Errorf("total tokens = %d, want 15", res.TotalTokens)
	}
	want := []int{2, 2, 1}
	if len(inner.batchSizes) != len(want) {
		t.Fatalf("batch sizes = %v, want %v", inner.batchSizes, want)
	}
	for i := range want {
		if inner.batchSizes[i] != want[i] {
			t.Errorf("batch sizes = %v, want %v", inner.batchSizes, want)
		}
	}
}

func TestInstrumentedEmbedder_BatchError(t *testing.T) {
	inner := &mockEmbedder{batchErr: errors.New("fail")}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", zap.NewNop())

	if _, err := p.BatchEmbed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestInstrumentedEmbedder_BatchFallback(t *testing.T) {
	inner := &singleEmbedder{}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", zap.NewNop())

	res, err := p.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 3 || len(res.Embeddings) != 3 || res.TotalTokens != 3 {
		t.Errorf("calls=%d embeddings=%d tokens=%d", inner.calls, len(res.Embeddings), res.TotalTokens)
	}
}

func TestInstrumentedEmbedder_BatchEmpty(t *testing.T) {
	inner := &mockEmbedder{}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", zap.NewNop())

	res, err := p.BatchEmbed(context.Background(), nil)
	if err != nil || res.Embeddings != nil || len(inner.batchSizes) != 0 {
		t.Errorf("res=%v err=%v calls=%d", res, err, len(inner.batchSizes))
	}
}

type healthyEmbedder struct {
	singleEmbedder
	err error
}

func (h *healthyEmbedder) HealthCheck(context.Context) error { return h.err }

func TestInstrumentedEmbedder_HealthCheck(t *testing.T) {
	ok := NewInstrumentedEmbedder(&healthyEmbedder{}, "openai", "m", zap.NewNop())
	if err := ok.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	down := NewInstrumentedEmbedder(&healthyEmbedder{err: errors.New("401")}, "openai", "m", zap.NewNop())
	if err := down.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check error")
	}

	// Providers without a health check are assumed healthy.
	plain := NewInstrumentedEmbedder(&singleEmbedder{}, "openai", "m", zap.NewNop())
	if err := plain.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
