// Package rulesets keeps one conversion engine per named rule set, each
// backed by its own rows in PostgreSQL.
package rulesets

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/timestamps/internal/logger"
	"github.com/liamcoop/timestamps/rules"
)

// ErrRuleSetNotFound is returned for an unknown or unloaded rule set ID
var ErrRuleSetNotFound = errors.New("rule set not found")

// Options are the per-rule-set conversion settings
type Options struct {
	OmitEmptyFormat bool `json:"omitEmptyFormat"`
	// MatchTimeoutMs bounds one rule's scan of one text. Zero disables it.
	MatchTimeoutMs int `json:"matchTimeoutMs"`
}

// DefaultOptions returns the settings a rule set starts with
func DefaultOptions() Options {
	return Options{MatchTimeoutMs: int(rules.DefaultMatchTimeout / time.Millisecond)}
}

func (o Options) engineOptions() []rules.Option {
	return []rules.Option{
		rules.WithOmitEmptyFormat(o.OmitEmptyFormat),
		rules.WithMatchTimeout(time.Duration(o.MatchTimeoutMs) * time.Millisecond),
	}
}

// RuleSet is a loaded rule set and the engine serving it
type RuleSet struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Options   Options       `json:"options"`
	CreatedAt time.Time     `json:"createdAt"`
	Engine    *rules.Engine `json:"-"`
}

// Manager manages engines for all rule sets
type Manager struct {
	sets       map[string]*RuleSet
	db         *sql.DB
	engineOpts []rules.Option
	mu         sync.RWMutex
}

// NewManager creates a manager over db. engineOpts are applied to every
// engine before the rule set's own options.
func NewManager(db *sql.DB, engineOpts ...rules.Option) *Manager {
	return &Manager{
		sets:       make(map[string]*RuleSet),
		db:         db,
		engineOpts: engineOpts,
	}
}

func (m *Manager) newEngine(id string, opts Options) (*rules.Engine, error) {
	store := rules.NewPostgresRuleStore(m.db, id)
	all := append(append([]rules.Option{}, m.engineOpts...), opts.engineOptions()...)

	engine, err := rules.NewEngine(store, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return engine, nil
}

// LoadAll loads every rule set from the database and builds its engine
func (m *Manager) LoadAll() error {
	rows, err := m.db.Query(`
		SELECT id, name, omit_empty_format, match_timeout_ms, created_at
		FROM rulesets
		ORDER BY created_at ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to fetch rule sets: %w", err)
	}
	defer rows.Close()

	var loaded []*RuleSet
	for rows.Next() {
		rs := &RuleSet{}
		if err := rows.Scan(&rs.ID, &rs.Name, &rs.Options.OmitEmptyFormat,
			&rs.Options.MatchTimeoutMs, &rs.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan rule set row: %w", err)
		}
		loaded = append(loaded, rs)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rule set rows: %w", err)
	}

	for _, rs := range loaded {
		engine, err := m.newEngine(rs.ID, rs.Options)
		if err != nil {
			return fmt.Errorf("failed to initialize rule set %s: %w", rs.ID, err)
		}
		rs.Engine = engine

		m.mu.Lock()
		m.sets[rs.ID] = rs
		m.mu.Unlock()
	}

	logger.Info("rule sets loaded", "count", len(loaded))
	return nil
}

// Create persists a new, empty rule set and loads its engine
func (m *Manager) Create(name string, opts Options) (*RuleSet, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ValidateOptions(opts); err != nil {
		return nil, err
	}

	rs := &RuleSet{ID: uuid.NewString(), Name: name, Options: opts}
	err := m.db.QueryRow(`
		INSERT INTO rulesets (id, name, omit_empty_format, match_timeout_ms)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, rs.ID, rs.Name, opts.OmitEmptyFormat, opts.MatchTimeoutMs).Scan(&rs.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert rule set: %w", err)
	}

	engine, err := m.newEngine(rs.ID, opts)
	if err != nil {
		return nil, err
	}
	rs.Engine = engine

	m.mu.Lock()
	m.sets[rs.ID] = rs
	m.mu.Unlock()

	logger.Info("rule set created", "ruleSetId", rs.ID, "name", name)
	return rs, nil
}

// Get returns a loaded rule set
func (m *Manager) Get(id string) (*RuleSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rs, exists := m.sets[id]
	if !exists {
		return nil, fmt.Errorf("rule set %s: %w", id, ErrRuleSetNotFound)
	}
	return rs, nil
}

// Engine returns the engine serving a rule set
func (m *Manager) Engine(id string) (*rules.Engine, error) {
	rs, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return rs.Engine, nil
}

// UpdateOptions saves new options and swaps in an engine built with them.
// Conversions already running keep the engine they started with.
func (m *Manager) UpdateOptions(id string, opts Options) error {
	if err := ValidateOptions(opts); err != nil {
		return err
	}

	current, err := m.Get(id)
	if err != nil {
		return err
	}

	result, err := m.db.Exec(`
		UPDATE rulesets
		SET omit_empty_format = $1, match_timeout_ms = $2, updated_at = NOW()
		WHERE id = $3
	`, opts.OmitEmptyFormat, opts.MatchTimeoutMs, id)
	if err != nil {
		return fmt.Errorf("failed to update rule set: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("rule set %s: %w", id, ErrRuleSetNotFound)
	}

	engine, err := m.newEngine(id, opts)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.sets[id] = &RuleSet{
		ID:        id,
		Name:      current.Name,
		Options:   opts,
		CreatedAt: current.CreatedAt,
		Engine:    engine,
	}
	m.mu.Unlock()

	logger.Info("rule set options updated", "ruleSetId", id,
		"omitEmptyFormat", opts.OmitEmptyFormat, "matchTimeoutMs", opts.MatchTimeoutMs)
	return nil
}

// List returns the loaded rule sets ordered by creation time
func (m *Manager) List() []*RuleSet {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*RuleSet, 0, len(m.sets))
	for _, rs := range m.sets {
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Delete unloads a rule set. Its rows stay in the database.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sets[id]; !exists {
		return fmt.Errorf("rule set %s: %w", id, ErrRuleSetNotFound)
	}

	delete(m.sets, id)
	return nil
}

// Remove deletes a rule set's rows, its rules included, and unloads it
func (m *Manager) Remove(id string) error {
	result, err := m.db.Exec(`DELETE FROM rulesets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule set: %w", err)
	}

	m.mu.Lock()
	_, loaded := m.sets[id]
	delete(m.sets, id)
	m.mu.Unlock()

	if n, err := result.RowsAffected(); err == nil && n == 0 && !loaded {
		return fmt.Errorf("rule set %s: %w", id, ErrRuleSetNotFound)
	}

	logger.Info("rule set removed", "ruleSetId", id)
	return nil
}

// AddRule validates a rule and appends it to a rule set
func (m *Manager) AddRule(id string, rule *rules.Rule) error {
	engine, err := m.Engine(id)
	if err != nil {
		return err
	}

	existing, err := engine.Store().List()
	if err != nil {
		return err
	}
	if err := ValidateRuleCount(len(existing) + 1); err != nil {
		return err
	}
	if err := ValidateRule(rule); err != nil {
		return err
	}

	return engine.AddRule(rule)
}

// UpdateRule validates a rule and replaces the one with the same ID
func (m *Manager) UpdateRule(id string, rule *rules.Rule) error {
	engine, err := m.Engine(id)
	if err != nil {
		return err
	}
	if err := ValidateRule(rule); err != nil {
		return err
	}
	return engine.UpdateRule(rule)
}

// DeleteRule removes a rule from a rule set
func (m *Manager) DeleteRule(id, ruleID string) error {
	engine, err := m.Engine(id)
	if err != nil {
		return err
	}
	return engine.DeleteRule(ruleID)
}

// Seed adds the built-in rules to a rule set, skipping any whose ID is
// already present, and returns how many were added
func (m *Manager) Seed(id string) (int, error) {
	if _, err := m.Get(id); err != nil {
		return 0, err
	}

	added := 0
	for _, rule := range rules.DefaultRules() {
		rule.Position = 0 // append after whatever the set already holds
		err := m.AddRule(id, rule)
		if errors.Is(err, rules.ErrRuleExists) {
			continue
		}
		if err != nil {
			return added, fmt.Errorf("failed to seed rule %s: %w", rule.ID, err)
		}
		added++
	}

	logger.Info("rule set seeded", "ruleSetId", id, "added", added)
	return added, nil
}
