package rules

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/liamcoop/timestamps/timestamp"
)

// uniqueViolation is the PostgreSQL error code for a duplicate key
const uniqueViolation = "23505"

const ruleColumns = `id, name, language, pattern, type, guard, position, active, created_at, updated_at`

// PostgresRuleStore implements RuleStore backed by PostgreSQL.
// Every query is scoped to one rule set.
type PostgresRuleStore struct {
	db        *sql.DB
	ruleSetID string
}

// NewPostgresRuleStore creates a PostgreSQL-backed RuleStore for a rule set
func NewPostgresRuleStore(db *sql.DB, ruleSetID string) *PostgresRuleStore {
	return &PostgresRuleStore{
		db:        db,
		ruleSetID: ruleSetID,
	}
}

// Add inserts a new rule. A zero Position appends the rule to the end of the set.
func (s *PostgresRuleStore) Add(rule *Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	rule.CreatedAt = now
	rule.UpdatedAt = now

	err := s.db.QueryRow(`
		INSERT INTO rules (id, ruleset_id, name, language, pattern, type, guard, position, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7,
			CASE WHEN $8::int > 0 THEN $8::int
				ELSE (SELECT COALESCE(MAX(position), 0) + 1 FROM rules WHERE ruleset_id = $2)
			END,
			$9, $10, $11)
		RETURNING position
	`, rule.ID, s.ruleSetID, rule.Name, rule.Language, rule.Pattern, rule.Type.String(),
		rule.Guard, rule.Position, rule.Active, rule.CreatedAt, rule.UpdatedAt).Scan(&rule.Position)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("rule with ID %s: %w", rule.ID, ErrRuleExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (*Rule, error) {
	var (
		r       Rule
		ruleTyp string
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Language, &r.Pattern, &ruleTyp, &r.Guard,
		&r.Position, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}

	tt, err := timestamp.ParseTemporalType(ruleTyp)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	r.Type = tt
	return &r, nil
}

// Get retrieves a rule by ID
func (s *PostgresRuleStore) Get(id string) (*Rule, error) {
	rule, err := scanRule(s.db.QueryRow(`
		SELECT `+ruleColumns+`
		FROM rules
		WHERE id = $1 AND ruleset_id = $2
	`, id, s.ruleSetID))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule with ID %s: %w", id, ErrRuleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return rule, nil
}

// List returns every rule in the set in registry order
func (s *PostgresRuleStore) List() ([]*Rule, error) {
	return s.query(`
		SELECT `+ruleColumns+`
		FROM rules
		WHERE ruleset_id = $1
		ORDER BY position ASC, created_at ASC
	`)
}

// ListActive returns the active rules in the set in registry order
func (s *PostgresRuleStore) ListActive() ([]*Rule, error) {
	return s.query(`
		SELECT `+ruleColumns+`
		FROM rules
		WHERE ruleset_id = $1 AND active = true
		ORDER BY position ASC, created_at ASC
	`)
}

func (s *PostgresRuleStore) query(q string) ([]*Rule, error) {
	rows, err := s.db.Query(q, s.ruleSetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rulesList []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesList = append(rulesList, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rulesList, nil
}

// Update modifies an existing rule. A zero Position keeps the stored one.
func (s *PostgresRuleStore) Update(rule *Rule) error {
	rule.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)

	err := s.db.QueryRow(`
		UPDATE rules
		SET name = $1, language = $2, pattern = $3, type = $4, guard = $5,
			position = CASE WHEN $6::int > 0 THEN $6::int ELSE position END,
			active = $7, updated_at = $8
		WHERE id = $9 AND ruleset_id = $10
		RETURNING position, created_at
	`, rule.Name, rule.Language, rule.Pattern, rule.Type.String(), rule.Guard,
		rule.Position, rule.Active, rule.UpdatedAt, rule.ID, s.ruleSetID).Scan(&rule.Position, &rule.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("rule with ID %s: %w", rule.ID, ErrRuleNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	return nil
}

// Delete removes a rule from the database
func (s *PostgresRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM rules
		WHERE id = $1 AND ruleset_id = $2
	`, id, s.ruleSetID)

	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule with ID %s: %w", id, ErrRuleNotFound)
	}

	return nil
}
