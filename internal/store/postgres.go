// Package store implements the optional persistent collaborators: Postgres
// and Redis backends with save/get methods for entities, contracts, and
// ideas and append/list methods for timeline events. The runtime does not
// call them; the serve command uses a configured backend only for its
// Ping health check.
//
// PostgresStore uses pgxpool with a single ensureSchema migration run at
// startup across four tables: entities, timeline_events, contracts, ideas.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/logline-motor/motor/internal/domain"
)

// PostgresStore is a pgx-backed collaborator for entities, contracts,
// ideas, and timeline events.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, verifies connectivity, and ensures the
// schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	s := &PostgresStore{pool: pool}

	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping verifies the database is reachable, for the /healthz/db endpoint.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres not initialized")
	}
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			logical_id TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS contracts (
			id TEXT PRIMARY KEY,
			clauses JSONB NOT NULL,
			tags JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ideas (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			tags JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS timeline_events (
			id BIGINT PRIMARY KEY,
			kind TEXT NOT NULL,
			channels JSONB NOT NULL,
			payload JSONB,
			occurred_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// SaveEntity upserts an entity row.
func (s *PostgresStore) SaveEntity(ctx context.Context, e domain.Entity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO entities (logical_id, entity_type, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (logical_id) DO UPDATE SET entity_type = EXCLUDED.entity_type`,
		e.LogicalID, e.Type, e.CreatedAt)
	return err
}

// GetEntity loads the entity stored under id.
func (s *PostgresStore) GetEntity(ctx context.Context, id string) (domain.Entity, error) {
	var e domain.Entity
	row := s.pool.QueryRow(ctx, `SELECT logical_id, entity_type, created_at FROM entities WHERE logical_id = $1`, id)
	if err := row.Scan(&e.LogicalID, &e.Type, &e.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Entity{}, fmt.Errorf("entity not found: %s", id)
		}
		return domain.Entity{}, err
	}
	return e, nil
}

// SaveContract upserts a contract row.
func (s *PostgresStore) SaveContract(ctx context.Context, c domain.Contract) error {
	clauses, err := json.Marshal(c.Clauses)
	if err != nil {
		return err
	}
	tags, err := json.Marshal(c.Tags)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO contracts (id, clauses, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET clauses = EXCLUDED.clauses, tags = EXCLUDED.tags, updated_at = EXCLUDED.updated_at`,
		c.ID, clauses, tags, c.CreatedAt, c.UpdatedAt)
	return err
}

// GetContract loads the contract stored under id.
func (s *PostgresStore) GetContract(ctx context.Context, id string) (domain.Contract, error) {
	var c domain.Contract
	var clauses, tags []byte
	row := s.pool.QueryRow(ctx, `SELECT id, clauses, tags, created_at, updated_at FROM contracts WHERE id = $1`, id)
	if err := row.Scan(&c.ID, &clauses, &tags, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Contract{}, fmt.Errorf("contract not found: %s", id)
		}
		return domain.Contract{}, err
	}
	if err := json.Unmarshal(clauses, &c.Clauses); err != nil {
		return domain.Contract{}, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &c.Tags); err != nil {
			return domain.Contract{}, err
		}
	}
	return c, nil
}

// SaveIdea upserts an idea row.
func (s *PostgresStore) SaveIdea(ctx context.Context, d domain.Idea) error {
	tags, err := json.Marshal(d.Tags)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ideas (id, text, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET text = EXCLUDED.text, tags = EXCLUDED.tags, updated_at = EXCLUDED.updated_at`,
		d.ID, d.Text, tags, d.CreatedAt, d.UpdatedAt)
	return err
}

// GetIdea loads the idea stored under id.
func (s *PostgresStore) GetIdea(ctx context.Context, id string) (domain.Idea, error) {
	var d domain.Idea
	var tags []byte
	row := s.pool.QueryRow(ctx, `SELECT id, text, tags, created_at, updated_at FROM ideas WHERE id = $1`, id)
	if err := row.Scan(&d.ID, &d.Text, &tags, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Idea{}, fmt.Errorf("idea not found: %s", id)
		}
		return domain.Idea{}, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &d.Tags); err != nil {
			return domain.Idea{}, err
		}
	}
	return d, nil
}

// AppendTimelineEvent persists a timeline event already assigned its id.
func (s *PostgresStore) AppendTimelineEvent(ctx context.Context, e domain.Event) error {
	channels, err := json.Marshal(e.Channels)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO timeline_events (id, kind, channels, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, string(e.Kind), channels, payload, e.Timestamp)
	return err
}

// ListTimelineEvents returns every persisted timeline event with id >
// afterID, in ascending id order.
func (s *PostgresStore) ListTimelineEvents(ctx context.Context, afterID uint64, limit int) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, channels, payload, occurred_at FROM timeline_events
		WHERE id > $1 ORDER BY id ASC LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var kind string
		var channels, payload []byte
		if err := rows.Scan(&e.ID, &kind, &channels, &payload, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Kind = domain.EventKind(kind)
		if err := json.Unmarshal(channels, &e.Channels); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, err
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
