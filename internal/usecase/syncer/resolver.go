package syncer

import (
	"context"

	"qagraph/internal/ports"
)

// Resolver maps application keys to surrogate ids, creating the application
// on first sight. The cache lives for one sync run: construct a fresh
// Resolver per run and pass it to every phase, so concurrent runs stay
// independent and a long-lived process never reuses stale entries.
type Resolver struct {
	store ports.GraphStore
	cache map[string]uint64
}

func NewResolver(store ports.GraphStore) *Resolver {
	return &Resolver{
		store: store,
		cache: make(map[string]uint64),
	}
}

func (r *Resolver) Resolve(ctx context.Context, appKey, name string) (uint64, error) {
	if id, ok := r.cache[appKey]; ok {
		return id, nil
	}

	id, err := r.store.ResolveApplication(ctx, appKey, name)
	if err != nil {
		return 0, err
	}
	r.cache[appKey] = id
	return id, nil
}
