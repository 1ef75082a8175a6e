package rules

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/liamcoop/timestamps/internal/logger"
	"github.com/liamcoop/timestamps/timestamp"
)

// DefaultMatchTimeout bounds a single rule's scan over one text
const DefaultMatchTimeout = 250 * time.Millisecond

// guardCostLimit keeps a pathological guard from stalling a conversion
const guardCostLimit = 10000

type compiledRule struct {
	rule    *Rule
	matcher *timestamp.Matcher
	guard   cel.Program // nil when the rule has no guard
}

// Engine runs the active rules of a store over input text, one rule after
// another, rewriting every bracketed expression a rule recognises.
// Safe for concurrent use.
type Engine struct {
	env       *cel.Env
	store     RuleStore
	cache     RuleCache
	compiled  map[string]*compiledRule // ruleID -> matcher and guard
	formatter timestamp.Formatter
	timeout   time.Duration
	clock     func() time.Time
	mu        sync.RWMutex
}

// Option configures an Engine
type Option func(*Engine)

// WithMatchTimeout sets the per-rule scan timeout. Zero disables it.
func WithMatchTimeout(d time.Duration) Option {
	return func(en *Engine) { en.timeout = d }
}

// WithOmitEmptyFormat renders <t:S> instead of <t:S:> for matches with
// fields but no format letter
func WithOmitEmptyFormat(omit bool) Option {
	return func(en *Engine) { en.formatter.OmitEmptyFormat = omit }
}

// WithClock replaces time.Now as the source of the conversion instant
func WithClock(clock func() time.Time) Option {
	return func(en *Engine) { en.clock = clock }
}

// WithCache replaces the default in-memory rule cache
func WithCache(cache RuleCache) Option {
	return func(en *Engine) { en.cache = cache }
}

// NewGuardEnv returns the CEL environment rule guards are compiled against
func NewGuardEnv() (*cel.Env, error) {
	opts := []cel.EnvOption{
		cel.Variable(timestamp.FormatGroup, cel.StringType),
		cel.Variable("language", cel.StringType),
	}
	for _, f := range timestamp.AllFields {
		opts = append(opts, cel.Variable(f.String(), cel.IntType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// CompileGuard compiles a guard expression. The expression must be boolean.
func CompileGuard(env *cel.Env, expression string) (cel.Program, error) {
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("guard compile error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("guard must evaluate to bool, got %s", ast.OutputType())
	}

	prog, err := env.Program(ast, cel.CostLimit(guardCostLimit))
	if err != nil {
		return nil, fmt.Errorf("guard program creation error: %w", err)
	}
	return prog, nil
}

// NewEngine creates an engine over store and compiles every active rule.
// A rule that fails to compile is a configuration error.
func NewEngine(store RuleStore, opts ...Option) (*Engine, error) {
	env, err := NewGuardEnv()
	if err != nil {
		return nil, err
	}

	en := &Engine{
		env:      env,
		store:    store,
		cache:    NewInMemoryRuleCache(DefaultCacheConfig()),
		compiled: make(map[string]*compiledRule),
		timeout:  DefaultMatchTimeout,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(en)
	}

	if err := en.CompileAllRules(); err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}

	return en, nil
}

func (en *Engine) compile(r *Rule) (*compiledRule, error) {
	m, err := timestamp.NewMatcher(r.Pattern, en.timeout)
	if err != nil {
		return nil, err
	}

	cr := &compiledRule{rule: r, matcher: m}
	if strings.TrimSpace(r.Guard) != "" {
		prog, err := CompileGuard(en.env, r.Guard)
		if err != nil {
			return nil, err
		}
		cr.guard = prog
	}
	return cr, nil
}

// CompileRule compiles the pattern and guard of r and keeps the result for
// later conversions
func (en *Engine) CompileRule(r *Rule) error {
	cr, err := en.compile(r)
	if err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}

	en.mu.Lock()
	en.compiled[r.ID] = cr
	en.mu.Unlock()

	return nil
}

// CompileAllRules compiles all active rules from the store and primes the cache
func (en *Engine) CompileAllRules() error {
	rules, err := en.store.ListActive()
	if err != nil {
		return err
	}

	for _, rule := range rules {
		if err := en.CompileRule(rule); err != nil {
			return err
		}
	}

	en.cache.Set(rules)
	return nil
}

// AddRule compiles r and adds it to the store
func (en *Engine) AddRule(r *Rule) error {
	if r.ID != "" {
		if _, err := en.store.Get(r.ID); err == nil {
			return fmt.Errorf("rule with ID %s: %w", r.ID, ErrRuleExists)
		}
	}

	cr, err := en.compile(r)
	if err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if err := en.store.Add(r); err != nil {
		return err
	}

	en.mu.Lock()
	en.compiled[r.ID] = cr
	en.mu.Unlock()

	en.cache.Invalidate()
	return nil
}

// UpdateRule recompiles r and replaces the stored rule with the same ID
func (en *Engine) UpdateRule(r *Rule) error {
	cr, err := en.compile(r)
	if err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if err := en.store.Update(r); err != nil {
		return err
	}

	en.mu.Lock()
	en.compiled[r.ID] = cr
	en.mu.Unlock()

	en.cache.Invalidate()
	return nil
}

// DeleteRule removes a rule from the store and drops its compiled form
func (en *Engine) DeleteRule(ruleID string) error {
	if err := en.store.Delete(ruleID); err != nil {
		return err
	}

	en.mu.Lock()
	delete(en.compiled, ruleID)
	en.mu.Unlock()

	en.cache.Invalidate()
	return nil
}

// Rules returns the active rules in the order they are applied
func (en *Engine) Rules() ([]*Rule, error) {
	if rules := en.cache.Get(); rules != nil {
		return rules, nil
	}

	rules, err := en.store.ListActive()
	if err != nil {
		return nil, err
	}
	en.cache.Set(rules)
	return rules, nil
}

// Store returns the store the engine reads rules from
func (en *Engine) Store() RuleStore {
	return en.store
}

// Now reads the engine clock
func (en *Engine) Now() time.Time {
	return en.clock()
}

// Convert rewrites text using the engine clock for "now"
func (en *Engine) Convert(text string) string {
	return en.Explain(text, en.clock()).Text
}

// ConvertAt rewrites text with now as the instant relative expressions are
// measured from
func (en *Engine) ConvertAt(text string, now time.Time) string {
	return en.Explain(text, now).Text
}

// Explain rewrites text and reports every replacement made.
//
// The text is normalized once, then each active rule in turn scans the
// current text and rewrites all of its matches in a single pass. The same
// now is used for every match. Conversion never fails: a rule whose scan
// times out contributes the matches found before the timeout.
func (en *Engine) Explain(text string, now time.Time) *Conversion {
	conv := &Conversion{
		Input:        text,
		Now:          now,
		Replacements: []Replacement{},
	}

	current := timestamp.Normalize(text)
	for _, cr := range en.activeRules() {
		current = en.apply(cr, current, now, conv)
	}
	conv.Text = current

	logger.TotalConversions.Add(1)
	logger.TotalReplacements.Add(int64(len(conv.Replacements)))
	return conv
}

// activeRules returns the compiled active rules in registry order. Rules
// that reached the store without going through the engine are compiled on
// first use.
func (en *Engine) activeRules() []*compiledRule {
	rules, err := en.Rules()
	if err != nil {
		logger.Error("failed to list active rules", "error", err)
		return nil
	}

	out := make([]*compiledRule, 0, len(rules))
	for _, rule := range rules {
		en.mu.RLock()
		cr, exists := en.compiled[rule.ID]
		en.mu.RUnlock()

		if !exists || cr.rule != rule {
			if err := en.CompileRule(rule); err != nil {
				logger.Error("skipping rule that does not compile", "rule", rule.ID, "error", err)
				continue
			}
			en.mu.RLock()
			cr = en.compiled[rule.ID]
			en.mu.RUnlock()
		}
		out = append(out, cr)
	}
	return out
}

// apply rewrites every match of one rule in text. Matches are disjoint and
// ordered, so the result is built front to back from the match offsets.
func (en *Engine) apply(cr *compiledRule, text string, now time.Time, conv *Conversion) string {
	matches, err := cr.matcher.FindMatches(text)
	if err != nil {
		logger.MatchTimeouts.Add(1)
		logger.Warn("rule scan stopped early", "rule", cr.rule.ID, "matches", len(matches), "error", err)
	}
	if len(matches) == 0 {
		return text
	}

	src := []rune(text)
	var b strings.Builder
	last, replaced := 0, 0
	for _, m := range matches {
		if !en.allowed(cr, m) {
			continue
		}

		instant := timestamp.Resolve(cr.rule.Type, m.Fields, now)
		markup := en.formatter.Format(instant, m)

		b.WriteString(string(src[last:m.Start]))
		b.WriteString(markup)
		last = m.End
		replaced++

		conv.Replacements = append(conv.Replacements, Replacement{
			RuleID:   cr.rule.ID,
			Language: cr.rule.Language,
			Type:     cr.rule.Type,
			Start:    m.Start,
			End:      m.End,
			Source:   m.Text,
			Markup:   markup,
			Instant:  instant,
		})
		logger.Debug("replaced expression", "rule", cr.rule.ID, "source", m.Text, "markup", markup)
	}

	if replaced == 0 {
		return text
	}
	b.WriteString(string(src[last:]))
	return b.String()
}

// allowed evaluates the rule guard for m. A rule without a guard allows
// every match; a guard that fails to evaluate allows none.
func (en *Engine) allowed(cr *compiledRule, m timestamp.Match) bool {
	if cr.guard == nil {
		return true
	}

	vars := map[string]any{
		timestamp.FormatGroup: timestamp.NormalizeFormat(m.Format),
		"language":            cr.rule.Language,
	}
	for _, f := range timestamp.AllFields {
		vars[f.String()] = int64(m.Fields.Int(f))
	}

	out, _, err := cr.guard.Eval(vars)
	if err != nil {
		logger.GuardErrors.Add(1)
		logger.Warn("guard evaluation failed", "rule", cr.rule.ID, "source", m.Text, "error", err)
		return false
	}

	ok, _ := out.Value().(bool)
	return ok
}
