package health

import "context"

// StorePinger checks vector store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to StorePinger.
type PingFunc func(ctx context.Context) error

// Ping implements StorePinger.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
