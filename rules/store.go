package rules

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrRuleNotFound is returned when no rule has the requested ID
	ErrRuleNotFound = errors.New("rule not found")
	// ErrRuleExists is returned when adding a rule whose ID is taken
	ErrRuleExists = errors.New("rule already exists")
)

// RuleStore manages rule persistence and retrieval
type RuleStore interface {
	// Add a new rule. An empty ID is replaced with a generated one and a zero
	// Position places the rule after every existing rule.
	Add(rule *Rule) error

	// Get a rule by ID
	Get(id string) (*Rule, error)

	// List every rule, active or not, in registry order
	List() ([]*Rule, error)

	// ListActive returns the active rules in registry order
	ListActive() ([]*Rule, error)

	// Update an existing rule
	Update(rule *Rule) error

	// Delete a rule
	Delete(id string) error
}

// InMemoryRuleStore implements RuleStore using an in-memory map.
// Safe for concurrent use.
type InMemoryRuleStore struct {
	rules map[string]*Rule
	seq   map[string]int
	next  int
	mu    sync.RWMutex
}

// NewInMemoryRuleStore creates a new in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules: make(map[string]*Rule),
		seq:   make(map[string]int),
	}
}

// NewInMemoryRuleStoreWith creates an in-memory store holding rules in the given order
func NewInMemoryRuleStoreWith(rules []*Rule) (*InMemoryRuleStore, error) {
	s := NewInMemoryRuleStore()
	for _, rule := range rules {
		if err := s.Add(rule); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add adds a new rule to the store
func (s *InMemoryRuleStore) Add(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule with ID %s: %w", rule.ID, ErrRuleExists)
	}

	if rule.Position == 0 {
		rule.Position = s.maxPosition() + 1
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.rules[rule.ID] = rule
	s.next++
	s.seq[rule.ID] = s.next
	return nil
}

func (s *InMemoryRuleStore) maxPosition() int {
	highest := 0
	for _, r := range s.rules {
		if r.Position > highest {
			highest = r.Position
		}
	}
	return highest
}

// Get retrieves a rule by ID
func (s *InMemoryRuleStore) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("rule with ID %s: %w", id, ErrRuleNotFound)
	}
	return rule, nil
}

// List returns all rules ordered by position, then by insertion
func (s *InMemoryRuleStore) List() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sorted(func(*Rule) bool { return true }), nil
}

// ListActive returns the active rules ordered by position, then by insertion
func (s *InMemoryRuleStore) ListActive() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sorted(func(r *Rule) bool { return r.Active }), nil
}

func (s *InMemoryRuleStore) sorted(keep func(*Rule) bool) []*Rule {
	var out []*Rule
	for _, rule := range s.rules {
		if keep(rule) {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return s.seq[out[i].ID] < s.seq[out[j].ID]
	})
	return out
}

// Update replaces an existing rule, keeping its CreatedAt timestamp
func (s *InMemoryRuleStore) Update(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return fmt.Errorf("rule with ID %s: %w", rule.ID, ErrRuleNotFound)
	}

	if rule.Position == 0 {
		rule.Position = existing.Position
	}
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	s.rules[rule.ID] = rule
	return nil
}

// Delete removes a rule from the store
func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("rule with ID %s: %w", id, ErrRuleNotFound)
	}

	delete(s.rules, id)
	delete(s.seq, id)
	return nil
}
