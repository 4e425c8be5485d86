package health

import (
	"context"
	"time"
)

// DefaultCheckTimeout bounds each component check.
const DefaultCheckTimeout = 2 * time.Second

// Status is the aggregated outcome of a health check.
type Status string

const (
	// Healthy: the store and the embeddings provider both answered.
	Healthy Status = "ok"
	// Degraded: the store answered but the embeddings provider did not.
	Degraded Status = "degraded"
	// Unhealthy: the store is unreachable, so no query can succeed.
	Unhealthy Status = "error"
)

// CheckResult is the outcome of one component check.
type CheckResult string

const (
	CheckOK      CheckResult = "ok"
	CheckError   CheckResult = "error"
	CheckTimeout CheckResult = "timeout"
)

// Component names used as Report.Checks keys.
const (
	ComponentStore     = "store"
	ComponentEmbedding = "embedding"
)

// Report aggregates component results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service checks the store and the embeddings provider behind the query API.
type Service struct {
	store     StorePinger
	embedding EmbeddingChecker
	timeout   time.Duration
}

// New creates a Service. embedding can be nil.
func New(store StorePinger, embedding EmbeddingChecker) *Service {
	return &Service{store: store, embedding: embedding, timeout: DefaultCheckTimeout}
}

// WithTimeout overrides the per-check timeout.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Check runs every configured check.
func (s *Service) Check(ctx context.Context) Report {
	checks := map[string]CheckResult{
		ComponentStore: s.run(ctx, s.store.Ping),
	}
	if s.embedding != nil {
		checks[ComponentEmbedding] = s.run(ctx, s.embedding.HealthCheck)
	}

	status := Healthy
	switch {
	case checks[ComponentStore] != CheckOK:
		status = Unhealthy
	case s.embedding != nil && checks[ComponentEmbedding] != CheckOK:
		status = Degraded
	}
	return Report{Status: status, Checks: checks}
}

func (s *Service) run(ctx context.Context, check func(context.Context) error) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := check(ctx); err != nil {
		if ctx.Err() != nil {
			return CheckTimeout
		}
		return CheckError
	}
	return CheckOK
}
