// Package event defines the audit-event stream emitted by the crawl core:
// job transitions, fetch completions, and canonical lead upserts. Events are
// batched by a Hub and fanned out to pluggable sinks.
package event

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Stage denotes the kind of milestone an Event records.
type Stage string

// Supported stages.
const (
	StageJobTransition Stage = "JOB_TRANSITION"
	StageFetchDone     Stage = "FETCH_DONE"
	StageLeadUpserted  Stage = "LEAD_UPSERTED"
)

// Event captures one auditable step of a crawl run.
type Event struct {
	TS      time.Time     `json:"ts"`
	Stage   Stage         `json:"stage"`
	URL     string        `json:"url,omitempty"`
	Domain  string        `json:"domain,omitempty"`
	Tier    int           `json:"tier,omitempty"`
	Outcome string        `json:"outcome,omitempty"`
	Status  string        `json:"status,omitempty"`
	LeadID  string        `json:"lead_id,omitempty"`
	Op      string        `json:"op,omitempty"`
	Score   float64       `json:"score,omitempty"`
	Bytes   int64         `json:"bytes,omitempty"`
	Dur     time.Duration `json:"dur,omitempty"`
	Note    string        `json:"note,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobTransition:
		if e.Status == "" {
			return errors.New("job transition requires status")
		}
	case StageFetchDone:
		if e.Outcome == "" {
			return errors.New("fetch done requires outcome")
		}
	case StageLeadUpserted:
		if e.LeadID == "" {
			return errors.New("lead upsert requires lead id")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	return nil
}

// Sink consumes batches of events. Implementations must honor ctx deadlines
// and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so the
// orchestrator stays agnostic about buffering and persistence.
type Emitter interface {
	Emit(evt Event)
}

// Discard is an Emitter that drops every event; useful in tests.
type Discard struct{}

// Emit implements Emitter.
func (Discard) Emit(Event) {}
