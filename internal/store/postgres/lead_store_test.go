package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyago/leadharvest/internal/lead"
)

func TestNewLeadStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewLeadStoreWithPool(nil, "leads")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewLeadStoreWithPool(mock, `leads"; DROP TABLE leads;--`)
	require.Error(t, err)

	store, err := NewLeadStoreWithPool(mock, "")
	require.NoError(t, err)
	assert.Equal(t, "leads", store.table)
}

func TestUpsertLead(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLeadStoreWithPool(mock, "leads")
	require.NoError(t, err)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l := &lead.Canonical{
		ID:           "lead-1",
		BusinessName: "Harbor Hotel",
		Email:        "stay@harbor.example",
		Phone:        "+12125550187",
		Address:      "123 Harbor St",
		Website:      "https://harbor.example",
		LeadType:     "hotel",
		ContributingSources: []string{
			"https://harbor.example/contact",
		},
		FieldMethods: map[string]lead.ExtractionMethod{
			"business_name": lead.MethodStructured,
			"email":         lead.MethodPattern,
		},
		Scores: lead.Scores{
			Completeness: 1.0,
			Relevance:    0.6,
			Freshness:    0.9,
			Confidence:   0.85,
			Final:        0.83,
		},
		LastFetchedAt: now,
		UpdatedAt:     now,
	}

	mock.ExpectExec("INSERT INTO leads").
		WithArgs(
			"lead-1", "Harbor Hotel", "stay@harbor.example", "+12125550187",
			"123 Harbor St", "https://harbor.example", "hotel",
			pgxmock.AnyArg(), pgxmock.AnyArg(),
			1.0, 0.6, 0.9, 0.85, 0.83,
			now, now,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertLead(context.Background(), l))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertLeadRejectsMissingID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLeadStoreWithPool(mock, "leads")
	require.NoError(t, err)

	require.Error(t, store.UpsertLead(context.Background(), nil))
	require.Error(t, store.UpsertLead(context.Background(), &lead.Canonical{}))
	require.NoError(t, mock.ExpectationsWereMet(), "no query issued for invalid leads")
}

func TestUpsertLeadPropagatesExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLeadStoreWithPool(mock, "leads")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO leads").
		WithArgs(
			"lead-1", "", "", "", "", "", "",
			pgxmock.AnyArg(), pgxmock.AnyArg(),
			0.0, 0.0, 0.0, 0.0, 0.0,
			time.Time{}, time.Time{},
		).
		WillReturnError(assert.AnError)

	err = store.UpsertLead(context.Background(), &lead.Canonical{ID: "lead-1"})
	require.ErrorIs(t, err, assert.AnError)
}

func TestNewLeadStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewLeadStore(context.Background(), LeadStoreConfig{})
	require.Error(t, err)
}
