// Package store provides lead persistence helpers shared by its backends.
package store

import (
	"context"
	"errors"

	"github.com/voyago/leadharvest/internal/crawl"
	"github.com/voyago/leadharvest/internal/lead"
)

// Multi fans an upsert out to every backend; all backends are attempted and
// the errors joined.
type Multi struct {
	stores []crawl.LeadStore
}

// NewMulti drops nil backends and returns the fan-out store.
func NewMulti(stores ...crawl.LeadStore) *Multi {
	kept := make([]crawl.LeadStore, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Multi{stores: kept}
}

// UpsertLead implements crawl.LeadStore.
func (m *Multi) UpsertLead(ctx context.Context, l *lead.Canonical) error {
	var errs []error
	for _, s := range m.stores {
		if err := s.UpsertLead(ctx, l); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
