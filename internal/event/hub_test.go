package event_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voyago/leadharvest/internal/event"
	"github.com/voyago/leadharvest/internal/event/sinks"
)

func fetchDone(url string) event.Event {
	return event.Event{
		TS:      time.Now(),
		Stage:   event.StageFetchDone,
		URL:     url,
		Outcome: "ok",
	}
}

func TestHubDeliversAndClosesSinks(t *testing.T) {
	t.Parallel()

	sink := sinks.NewMemorySink()
	hub := event.NewHub(event.HubConfig{
		MaxBatchEvents: 2,
		MaxBatchWait:   10 * time.Millisecond,
		Logger:         zaptest.NewLogger(t),
	}, sink)

	for i := 0; i < 5; i++ {
		hub.Emit(fetchDone("https://a.example/"))
	}
	require.NoError(t, hub.Close(context.Background()))

	assert.Len(t, sink.Events(), 5, "close drains the partial batch")
	assert.True(t, sink.Closed())
}

func TestHubFlushesOnBatchSize(t *testing.T) {
	t.Parallel()

	sink := sinks.NewMemorySink()
	hub := event.NewHub(event.HubConfig{
		MaxBatchEvents: 3,
		MaxBatchWait:   time.Hour, // only the size trigger can flush
		Logger:         zaptest.NewLogger(t),
	}, sink)
	defer func() { _ = hub.Close(context.Background()) }()

	for i := 0; i < 3; i++ {
		hub.Emit(fetchDone("https://a.example/"))
	}
	require.Eventually(t, func() bool {
		return len(sink.Events()) == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := sinks.NewMemorySink()
	hub := event.NewHub(event.HubConfig{Logger: zaptest.NewLogger(t)}, sink)

	hub.Emit(event.Event{Stage: event.StageFetchDone, Outcome: "ok"}) // zero TS
	hub.Emit(event.Event{TS: time.Now(), Stage: "BOGUS"})
	hub.Emit(event.Event{TS: time.Now(), Stage: event.StageLeadUpserted}) // no lead id
	hub.Emit(fetchDone("https://a.example/"))

	require.NoError(t, hub.Close(context.Background()))
	assert.Len(t, sink.Events(), 1)
}

func TestHubEmitAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	sink := sinks.NewMemorySink()
	hub := event.NewHub(event.HubConfig{Logger: zaptest.NewLogger(t)}, sink)
	require.NoError(t, hub.Close(context.Background()))

	hub.Emit(fetchDone("https://a.example/"))
	assert.Empty(t, sink.Events())
}

func TestHubNilSafe(t *testing.T) {
	t.Parallel()

	var hub *event.Hub
	hub.Emit(fetchDone("https://a.example/"))
	require.NoError(t, hub.Close(context.Background()))
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cases := []struct {
		name    string
		evt     event.Event
		wantErr bool
	}{
		{"fetch done ok", event.Event{TS: now, Stage: event.StageFetchDone, Outcome: "timeout"}, false},
		{"fetch done missing outcome", event.Event{TS: now, Stage: event.StageFetchDone}, true},
		{"transition ok", event.Event{TS: now, Stage: event.StageJobTransition, Status: "retry_queued"}, false},
		{"transition missing status", event.Event{TS: now, Stage: event.StageJobTransition}, true},
		{"upsert ok", event.Event{TS: now, Stage: event.StageLeadUpserted, LeadID: "x"}, false},
		{"upsert missing lead", event.Event{TS: now, Stage: event.StageLeadUpserted}, true},
		{"zero timestamp", event.Event{Stage: event.StageFetchDone, Outcome: "ok"}, true},
		{"unknown stage", event.Event{TS: now, Stage: "NOPE"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.evt.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
