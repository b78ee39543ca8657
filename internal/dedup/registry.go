// Package dedup guarantees each physical document is surfaced at most once
// across runs.
package dedup

import (
	"context"
	"fmt"
	"sync"

	"prospector/internal/domain"
	"prospector/internal/ports"
)

const loadPageSize = 5000

// Registry is an in-memory set of (accession number, file name) keys, seeded
// from the store at run start. It is scoped to a single run's logical scope
// and must never be shared across concurrent runs of the same scope.
type Registry struct {
	mu   sync.Mutex
	seen map[domain.DocumentKey]struct{}
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{seen: make(map[domain.DocumentKey]struct{})}
}

// Load seeds the registry with every key already recorded in the store,
// paging past any single-request row cap. Must complete before the first
// candidate is evaluated.
func (r *Registry) Load(ctx context.Context, store ports.DocumentStore) error {
	for offset := 0; ; offset += loadPageSize {
		keys, err := store.ListDocumentKeys(ctx, offset, loadPageSize)
		if err != nil {
			return fmt.Errorf("load dedup keys: %w", err)
		}
		r.mu.Lock()
		for _, k := range keys {
			r.seen[k] = struct{}{}
		}
		r.mu.Unlock()
		if len(keys) < loadPageSize {
			return nil
		}
	}
}

// Claim performs an atomic check-and-set: it reports whether the key was
// unseen and records it in the same critical section, so two concurrent
// evaluations of the same key cannot both pass.
func (r *Registry) Claim(key domain.DocumentKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[key]; ok {
		return false
	}
	r.seen[key] = struct{}{}
	return true
}

// Has reports membership without claiming.
func (r *Registry) Has(key domain.DocumentKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[key]
	return ok
}

// Len returns the number of known keys.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}
