// Package postgres provides Postgres-backed lead persistence.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyago/leadharvest/internal/lead"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// LeadStoreConfig controls the Postgres connection pool used for lead rows.
type LeadStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// LeadStore upserts canonical leads into Postgres. The resolver owns the
// canonical state; each upsert overwrites the row wholesale.
type LeadStore struct {
	pool  execCloser
	table string
}

// NewLeadStore creates a Postgres-backed LeadStore using the provided config.
func NewLeadStore(ctx context.Context, cfg LeadStoreConfig) (*LeadStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "leads"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &LeadStore{pool: pool, table: table}, nil
}

// NewLeadStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewLeadStoreWithPool(pool execCloser, table string) (*LeadStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "leads"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &LeadStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *LeadStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertLead writes the lead row, replacing any previous version by id.
func (s *LeadStore) UpsertLead(ctx context.Context, l *lead.Canonical) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("lead store is not configured")
	}
	if l == nil || l.ID == "" {
		return fmt.Errorf("lead id is required")
	}
	sourcesJSON, err := json.Marshal(l.ContributingSources)
	if err != nil {
		return fmt.Errorf("marshal contributing sources: %w", err)
	}
	methodsJSON, err := json.Marshal(l.FieldMethods)
	if err != nil {
		return fmt.Errorf("marshal field methods: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	business_name,
	email,
	phone,
	address,
	website,
	lead_type,
	contributing_sources,
	field_methods,
	completeness,
	relevance,
	freshness,
	confidence,
	final_score,
	last_fetched_at,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
)
ON CONFLICT (id) DO UPDATE SET
	business_name = EXCLUDED.business_name,
	email = EXCLUDED.email,
	phone = EXCLUDED.phone,
	address = EXCLUDED.address,
	website = EXCLUDED.website,
	lead_type = EXCLUDED.lead_type,
	contributing_sources = EXCLUDED.contributing_sources,
	field_methods = EXCLUDED.field_methods,
	completeness = EXCLUDED.completeness,
	relevance = EXCLUDED.relevance,
	freshness = EXCLUDED.freshness,
	confidence = EXCLUDED.confidence,
	final_score = EXCLUDED.final_score,
	last_fetched_at = EXCLUDED.last_fetched_at,
	updated_at = EXCLUDED.updated_at`, s.table)

	args := []any{
		l.ID,
		l.BusinessName,
		l.Email,
		l.Phone,
		l.Address,
		l.Website,
		l.LeadType,
		sourcesJSON,
		methodsJSON,
		l.Scores.Completeness,
		l.Scores.Relevance,
		l.Scores.Freshness,
		l.Scores.Confidence,
		l.Scores.Final,
		l.LastFetchedAt,
		l.UpdatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert lead: %w", err)
	}
	return nil
}
