package vectorstore

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/kailas-cloud/docingest/internal/domain"
)

// Constructor builds or loads a store for one backend.
type Constructor func(ctx context.Context, opts Options) (Store, error)

// Registry maps backend identifiers to constructors. It is immutable after
// NewRegistry and safe to share.
type Registry struct {
	ctors map[Kind]Constructor
}

// NewRegistry copies table; identifiers are matched case-insensitively.
func NewRegistry(table map[Kind]Constructor) *Registry {
	ctors := make(map[Kind]Constructor, len(table))
	for k, c := range table {
		ctors[normalize(string(k))] = c
	}
	return &Registry{ctors: ctors}
}

// Create resolves kind and runs its constructor. The registry does no I/O of
// its own; all side effects belong to the constructor.
func (r *Registry) Create(ctx context.Context, kind string, opts Options) (Store, error) {
	ctor, ok := r.ctors[normalize(kind)]
	if !ok {
		valid := make([]string, 0, len(r.ctors))
		for _, k := range r.Kinds() {
			valid = append(valid, string(k))
		}
		return nil, &domain.UnknownBackendError{Requested: kind, Valid: valid}
	}
	return ctor(ctx, opts)
}

// Kinds lists registered backends in sorted order.
func (r *Registry) Kinds() []Kind {
	return slices.Sorted(maps.Keys(r.ctors))
}

func normalize(kind string) Kind {
	return Kind(strings.ToLower(strings.TrimSpace(kind)))
}
