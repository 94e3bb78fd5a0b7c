// Package memory provides an in-memory lead store used in tests and when no
// database is configured. It also serves the API's ranked read-only snapshot.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/voyago/leadharvest/internal/lead"
	"github.com/voyago/leadharvest/internal/score"
)

// LeadStore keeps the latest version of every lead keyed by id.
type LeadStore struct {
	mu    sync.RWMutex
	leads map[string]lead.Canonical
}

// New returns an empty store.
func New() *LeadStore {
	return &LeadStore{leads: make(map[string]lead.Canonical)}
}

// UpsertLead stores a copy of the lead.
func (s *LeadStore) UpsertLead(_ context.Context, l *lead.Canonical) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[l.ID] = *l
	return nil
}

// Get returns the lead by id.
func (s *LeadStore) Get(id string) (lead.Canonical, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leads[id]
	return l, ok
}

// Len reports the number of stored leads.
func (s *LeadStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.leads)
}

// Ranked returns up to limit leads ordered by final score descending, with
// completeness and recency as tiebreakers. limit <= 0 means all.
func (s *LeadStore) Ranked(limit int) []lead.Canonical {
	s.mu.RLock()
	out := make([]lead.Canonical, 0, len(s.leads))
	for _, l := range s.leads {
		out = append(out, l)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return score.Less(&out[i], &out[j])
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
