package rules

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/liamcoop/timestamps/timestamp"
)

// SQLiteRuleStore implements RuleStore in a single SQLite file, for hosts
// that keep a local registry without a database server
type SQLiteRuleStore struct {
	db *sql.DB
}

// NewSQLiteRuleStore opens or creates the registry at dbPath
func NewSQLiteRuleStore(dbPath string) (*SQLiteRuleStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteRuleStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteRuleStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS rules (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		language   TEXT NOT NULL DEFAULT '',
		pattern    TEXT NOT NULL,
		type       TEXT NOT NULL,
		guard      TEXT NOT NULL DEFAULT '',
		position   INTEGER NOT NULL,
		active     INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rules_position ON rules(position);
	`)
	return err
}

// Close releases the database handle
func (s *SQLiteRuleStore) Close() error {
	return s.db.Close()
}

// Add inserts a new rule. A zero Position appends the rule to the end.
func (s *SQLiteRuleStore) Add(rule *Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM rules WHERE id = ?)`, rule.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule with ID %s: %w", rule.ID, ErrRuleExists)
	}

	if rule.Position == 0 {
		if err := tx.QueryRow(`SELECT COALESCE(MAX(position), 0) + 1 FROM rules`).Scan(&rule.Position); err != nil {
			return fmt.Errorf("failed to assign position: %w", err)
		}
	}

	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err = tx.Exec(`
		INSERT INTO rules (id, name, language, pattern, type, guard, position, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rule.ID, rule.Name, rule.Language, rule.Pattern, rule.Type.String(), rule.Guard,
		rule.Position, rule.Active, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return tx.Commit()
}

// Get retrieves a rule by ID
func (s *SQLiteRuleStore) Get(id string) (*Rule, error) {
	rule, err := scanSQLiteRule(s.db.QueryRow(`
		SELECT `+ruleColumns+` FROM rules WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule with ID %s: %w", id, ErrRuleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// List returns every rule in registry order
func (s *SQLiteRuleStore) List() ([]*Rule, error) {
	return s.query(`SELECT ` + ruleColumns + ` FROM rules ORDER BY position, rowid`)
}

// ListActive returns the active rules in registry order
func (s *SQLiteRuleStore) ListActive() ([]*Rule, error) {
	return s.query(`SELECT ` + ruleColumns + ` FROM rules WHERE active = 1 ORDER BY position, rowid`)
}

func (s *SQLiteRuleStore) query(q string) ([]*Rule, error) {
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var out []*Rule
	for rows.Next() {
		r, err := scanSQLiteRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Update modifies an existing rule. A zero Position keeps the stored one.
func (s *SQLiteRuleStore) Update(rule *Rule) error {
	existing, err := s.Get(rule.ID)
	if err != nil {
		return err
	}

	if rule.Position == 0 {
		rule.Position = existing.Position
	}
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now().UTC()

	_, err = s.db.Exec(`
		UPDATE rules
		SET name = ?, language = ?, pattern = ?, type = ?, guard = ?, position = ?, active = ?, updated_at = ?
		WHERE id = ?
	`, rule.Name, rule.Language, rule.Pattern, rule.Type.String(), rule.Guard,
		rule.Position, rule.Active, formatTime(rule.UpdatedAt), rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return nil
}

// Delete removes a rule
func (s *SQLiteRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("rule with ID %s: %w", id, ErrRuleNotFound)
	}
	return nil
}

func scanSQLiteRule(row scanner) (*Rule, error) {
	var (
		r                    Rule
		ruleTyp              string
		createdAt, updatedAt string
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Language, &r.Pattern, &ruleTyp, &r.Guard,
		&r.Position, &r.Active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	tt, err := timestamp.ParseTemporalType(ruleTyp)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	r.Type = tt
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}
