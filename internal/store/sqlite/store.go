// Package sqlite provides SQLite-backed rule and snapshot persistence.
// Uses ncruces/go-sqlite3/driver which provides a database/sql interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/JonMunkholm/InvoiceDesk/internal/codec"
	"github.com/JonMunkholm/InvoiceDesk/internal/core"
)

// Store implements core.RuleStore and core.SnapshotStore.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
-- Prioritization rules, evaluated in position order
CREATE TABLE IF NOT EXISTS rules (
    id TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    priority TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    conditions TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rules_position ON rules(position);

-- Global settings, a single JSON row
CREATE TABLE IF NOT EXISTS settings (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    payload TEXT NOT NULL
);

-- Recovery snapshots of loaded datasets (zstd-compressed JSON)
CREATE TABLE IF NOT EXISTS snapshots (
    id TEXT PRIMARY KEY,
    payload BLOB NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at);
`

// Open opens the database at dsn and creates the schema.
// Use ":memory:" for an in-memory store or a file path for persistent storage.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite has a single writer, and ":memory:" databases
	// are private to their connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// Rules
// =============================================================================

// Rules returns all rules in evaluation order.
func (s *Store) Rules(ctx context.Context) ([]core.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, active, priority, reason, conditions FROM rules ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []core.Rule
	for rows.Next() {
		var (
			r          core.Rule
			priority   string
			conditions string
		)
		if err := rows.Scan(&r.ID, &r.Active, &priority, &r.Reason, &conditions); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.Priority = core.Priority(priority)
		if err := json.Unmarshal([]byte(conditions), &r.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions of rule %s: %w", r.ID, err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// SaveRule inserts a rule at the end of the list, or replaces a stored rule
// with the same id while keeping its position.
func (s *Store) SaveRule(ctx context.Context, rule core.Rule) (core.Rule, error) {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return core.Rule{}, fmt.Errorf("encode conditions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rules (id, position, active, priority, reason, conditions)
		VALUES (?, (SELECT COALESCE(MAX(position), -1) + 1 FROM rules), ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			active = excluded.active,
			priority = excluded.priority,
			reason = excluded.reason,
			conditions = excluded.conditions`,
		rule.ID, rule.Active, string(rule.Priority), rule.Reason, string(conditions))
	if err != nil {
		return core.Rule{}, fmt.Errorf("save rule: %w", err)
	}
	return rule, nil
}

// DeleteRule removes a rule, returning core.ErrNotFound for unknown ids.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return requireAffected(res)
}

// ToggleRule sets a rule's active flag, returning core.ErrNotFound for unknown ids.
func (s *Store) ToggleRule(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE rules SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("toggle rule: %w", err)
	}
	return requireAffected(res)
}

// ReplaceAll swaps every rule and the settings in one transaction.
func (s *Store) ReplaceAll(ctx context.Context, rules []core.Rule, settings core.Settings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rules`); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rules (id, position, active, priority, reason, conditions) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range rules {
		conditions, err := json.Marshal(r.Conditions)
		if err != nil {
			return fmt.Errorf("encode conditions: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, i, r.Active, string(r.Priority), r.Reason, string(conditions)); err != nil {
			return fmt.Errorf("insert rule %s: %w", r.ID, err)
		}
	}

	if err := saveSettings(ctx, tx, settings); err != nil {
		return err
	}
	return tx.Commit()
}

// Settings returns the stored settings, or the defaults when none are saved.
func (s *Store) Settings(ctx context.Context) (core.Settings, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM settings WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DefaultSettings(), nil
	}
	if err != nil {
		return core.Settings{}, fmt.Errorf("query settings: %w", err)
	}

	settings := core.DefaultSettings()
	if err := json.Unmarshal([]byte(payload), &settings); err != nil {
		return core.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return settings, nil
}

// SaveSettings stores the settings.
func (s *Store) SaveSettings(ctx context.Context, settings core.Settings) error {
	return saveSettings(ctx, s.db, settings)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveSettings(ctx context.Context, db execer, settings core.Settings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO settings (id, payload) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`,
		string(payload))
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// =============================================================================
// Snapshots
// =============================================================================

// Save stores the dataset loaded for a session. Snapshots are immutable:
// saving over an existing id fails with core.ErrSnapshotExists.
func (s *Store) Save(ctx context.Context, id string, ds core.Dataset) error {
	payload, err := codec.Encode(ds)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, payload, created_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		id, payload, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrSnapshotExists
	}
	return nil
}

// Load returns the snapshot for id, or core.ErrNotFound.
func (s *Store) Load(ctx context.Context, id string) (core.Dataset, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Dataset{}, core.ErrNotFound
	}
	if err != nil {
		return core.Dataset{}, fmt.Errorf("load snapshot: %w", err)
	}

	var ds core.Dataset
	if err := codec.Decode(payload, &ds); err != nil {
		return core.Dataset{}, err
	}
	return ds, nil
}

// Delete removes a snapshot, returning core.ErrNotFound for unknown ids.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return requireAffected(res)
}

// Sweep deletes snapshots created before olderThan.
func (s *Store) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE created_at < ?`, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sweep snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep snapshots: %w", err)
	}
	return int(n), nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
