// Package postgres provides a PostgreSQL-backed rule store for deployments
// where several server instances share one rule configuration.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/InvoiceDesk/internal/core"
)

// PoolConfig mirrors the connection pool settings in config.DatabaseConfig.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

const schema = `
CREATE TABLE IF NOT EXISTS priority_rules (
    id         TEXT PRIMARY KEY,
    position   INTEGER NOT NULL,
    active     BOOLEAN NOT NULL DEFAULT TRUE,
    priority   TEXT NOT NULL CHECK (priority IN ('High', 'Medium', 'Low')),
    reason     TEXT NOT NULL DEFAULT '',
    conditions JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS priority_settings (
    id      INTEGER PRIMARY KEY CHECK (id = 1),
    payload JSONB NOT NULL
);
`

// RuleStore implements core.RuleStore on a pgx pool.
type RuleStore struct {
	pool *pgxpool.Pool
}

// Connect parses cfg, opens a pool, verifies it and creates the schema.
func Connect(ctx context.Context, cfg PoolConfig) (*RuleStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := NewRuleStore(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewRuleStore wraps an existing pool.
func NewRuleStore(pool *pgxpool.Pool) *RuleStore {
	return &RuleStore{pool: pool}
}

// EnsureSchema creates the rule tables if they do not exist.
func (s *RuleStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *RuleStore) Close() {
	s.pool.Close()
}

// Rules returns all rules in evaluation order.
func (s *RuleStore) Rules(ctx context.Context) ([]core.Rule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, active, priority, reason, conditions FROM priority_rules ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []core.Rule
	for rows.Next() {
		var (
			r          core.Rule
			priority   string
			conditions []byte
		)
		if err := rows.Scan(&r.ID, &r.Active, &priority, &r.Reason, &conditions); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.Priority = core.Priority(priority)
		if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions of rule %s: %w", r.ID, err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// SaveRule appends a new rule or replaces a stored one in place.
func (s *RuleStore) SaveRule(ctx context.Context, rule core.Rule) (core.Rule, error) {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return core.Rule{}, fmt.Errorf("encode conditions: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO priority_rules (id, position, active, priority, reason, conditions)
		VALUES ($1, (SELECT COALESCE(MAX(position), -1) + 1 FROM priority_rules), $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			active = EXCLUDED.active,
			priority = EXCLUDED.priority,
			reason = EXCLUDED.reason,
			conditions = EXCLUDED.conditions,
			updated_at = now()`,
		rule.ID, rule.Active, string(rule.Priority), rule.Reason, string(conditions))
	if err != nil {
		return core.Rule{}, fmt.Errorf("save rule: %w", err)
	}
	return rule, nil
}

// DeleteRule removes a rule, returning core.ErrNotFound for unknown ids.
func (s *RuleStore) DeleteRule(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM priority_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ToggleRule sets a rule's active flag, returning core.ErrNotFound for unknown ids.
func (s *RuleStore) ToggleRule(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE priority_rules SET active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("toggle rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ReplaceAll swaps every rule and the settings in one transaction.
func (s *RuleStore) ReplaceAll(ctx context.Context, rules []core.Rule, settings core.Settings) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM priority_rules`)
	for i, r := range rules {
		conditions, err := json.Marshal(r.Conditions)
		if err != nil {
			return fmt.Errorf("encode conditions: %w", err)
		}
		batch.Queue(
			`INSERT INTO priority_rules (id, position, active, priority, reason, conditions) VALUES ($1, $2, $3, $4, $5, $6)`,
			r.ID, i, r.Active, string(r.Priority), r.Reason, string(conditions))
	}
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	batch.Queue(upsertSettings, string(payload))

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("replace rules: %w", err)
	}
	return tx.Commit(ctx)
}

const upsertSettings = `
	INSERT INTO priority_settings (id, payload) VALUES (1, $1)
	ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload`

// Settings returns the stored settings, or the defaults when none are saved.
func (s *RuleStore) Settings(ctx context.Context) (core.Settings, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM priority_settings WHERE id = 1`).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.DefaultSettings(), nil
	}
	if err != nil {
		return core.Settings{}, fmt.Errorf("query settings: %w", err)
	}

	settings := core.DefaultSettings()
	if err := json.Unmarshal(payload, &settings); err != nil {
		return core.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return settings, nil
}

// SaveSettings stores the settings.
func (s *RuleStore) SaveSettings(ctx context.Context, settings core.Settings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if _, err := s.pool.Exec(ctx, upsertSettings, string(payload)); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
