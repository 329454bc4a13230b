package registry

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Schema is the PostgreSQL schema the store expects.
const Schema = `
CREATE TABLE IF NOT EXISTS model_versions (
	agent_id   TEXT NOT NULL,
	version_id BIGINT NOT NULL,
	envelope   JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (agent_id, version_id)
);

CREATE TABLE IF NOT EXISTS active_models (
	agent_id   TEXT PRIMARY KEY,
	version_id BIGINT NOT NULL
);
`

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the schema.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply registry schema: %w", err)
	}
	return nil
}

// SaveVersion implements Store.
func (p *PostgresStore) SaveVersion(ctx context.Context, env *Envelope) error {
	data, err := Encode(env)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO model_versions (agent_id, version_id, envelope, created_at)
		VALUES ($1, $2, $3, $4)`
	if _, err := p.db.ExecContext(ctx, query, env.AgentID, env.VersionID, data, env.CreatedAt); err != nil {
		return fmt.Errorf("insert model version %s/%d: %w", env.AgentID, env.VersionID, err)
	}
	return nil
}

// SetActive implements Store.
func (p *PostgresStore) SetActive(ctx context.Context, agentID string, versionID int64) error {
	query := `
		INSERT INTO active_models (agent_id, version_id)
		VALUES ($1, $2)
		ON CONFLICT (agent_id) DO UPDATE SET version_id = EXCLUDED.version_id`
	if _, err := p.db.ExecContext(ctx, query, agentID, versionID); err != nil {
		return fmt.Errorf("set active model %s/%d: %w", agentID, versionID, err)
	}
	return nil
}

// DeleteVersion implements Store.
func (p *PostgresStore) DeleteVersion(ctx context.Context, agentID string, versionID int64) error {
	query := `DELETE FROM model_versions WHERE agent_id = $1 AND version_id = $2`
	if _, err := p.db.ExecContext(ctx, query, agentID, versionID); err != nil {
		return fmt.Errorf("delete model version %s/%d: %w", agentID, versionID, err)
	}
	return nil
}

// Load implements Store.
func (p *PostgresStore) Load(ctx context.Context) ([]*Envelope, map[string]int64, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT envelope FROM model_versions ORDER BY agent_id, version_id`)
	if err != nil {
		return nil, nil, fmt.Errorf("load model versions: %w", err)
	}
	defer rows.Close()

	var envelopes []*Envelope
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, nil, fmt.Errorf("scan model version: %w", err)
		}
		env, err := Decode(data)
		if err != nil {
			return nil, nil, err
		}
		envelopes = append(envelopes, env)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate model versions: %w", err)
	}

	activeRows, err := p.db.QueryContext(ctx, `SELECT agent_id, version_id FROM active_models`)
	if err != nil {
		return nil, nil, fmt.Errorf("load active models: %w", err)
	}
	defer activeRows.Close()

	active := make(map[string]int64)
	for activeRows.Next() {
		var agentID string
		var versionID int64
		if err := activeRows.Scan(&agentID, &versionID); err != nil {
			return nil, nil, fmt.Errorf("scan active model: %w", err)
		}
		active[agentID] = versionID
	}
	if err := activeRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate active models: %w", err)
	}
	return envelopes, active, nil
}

// Close implements Store.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}
