package main

import (
	"time"

	"github.com/liamcoop/timestamps/rules"
	"github.com/liamcoop/timestamps/rulesets"
	"github.com/liamcoop/timestamps/timestamp"
)

// ConvertRequest is the body of POST /api/v1/convert
type ConvertRequest struct {
	Text string `json:"text" example:"meeting <in 2 hours R>"`
	// RuleSetID selects a stored rule set; empty means the built-in rules
	RuleSetID string `json:"ruleSetId,omitempty"`
	// Now pins the conversion instant, in Unix seconds
	Now *int64 `json:"now,omitempty" example:"1772634615"`
}

// ConvertResponse is the result of a conversion
type ConvertResponse struct {
	Text           string              `json:"text"`
	Now            int64               `json:"now"`
	Replacements   []rules.Replacement `json:"replacements"`
	ConversionTime string              `json:"conversionTime" example:"180µs"`
}

// CreateRuleSetRequest is the body of POST /api/v1/rulesets
type CreateRuleSetRequest struct {
	Name    string            `json:"name" example:"discord-bot"`
	Options *rulesets.Options `json:"options,omitempty"`
	// Seed fills the new rule set with the built-in rules
	Seed bool `json:"seed,omitempty"`
}

// RuleSetResponse describes a loaded rule set
type RuleSetResponse struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Options   rulesets.Options `json:"options"`
	CreatedAt time.Time        `json:"createdAt"`
}

// RuleSetsListResponse lists loaded rule sets
type RuleSetsListResponse struct {
	RuleSets []RuleSetResponse `json:"ruleSets"`
}

// RuleRequest is the body for creating or updating a rule
type RuleRequest struct {
	ID       string                  `json:"id,omitempty"`
	Name     string                  `json:"name"`
	Language string                  `json:"language" example:"ja"`
	Pattern  string                  `json:"pattern" example:"(?<days>\\d+)日後([:：]|\\s)?(?<format>[tTdDfFR])?"`
	Type     *timestamp.TemporalType `json:"type" example:"future"`
	Guard    string                  `json:"guard,omitempty" example:"days <= 365"`
	Position int                     `json:"position,omitempty"`
	Active   *bool                   `json:"active,omitempty"`
}

func (r RuleRequest) toRule(id string) *rules.Rule {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	var typ timestamp.TemporalType
	if r.Type != nil {
		typ = *r.Type
	}
	return &rules.Rule{
		ID:       id,
		Name:     r.Name,
		Language: r.Language,
		Pattern:  r.Pattern,
		Type:     typ,
		Guard:    r.Guard,
		Position: r.Position,
		Active:   active,
	}
}

// RulesListResponse lists rules in the order they are applied
type RulesListResponse struct {
	Rules []*rules.Rule `json:"rules"`
}

// SeedResponse reports how many built-in rules were added
type SeedResponse struct {
	Added int `json:"added"`
}

// ErrorResponse is returned for every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is returned by the health check
type HealthResponse struct {
	Status         string           `json:"status"`
	Rules          int              `json:"rules"`
	RuleSetsLoaded int              `json:"ruleSetsLoaded"`
	Counters       map[string]int64 `json:"counters"`
	Error          string           `json:"error,omitempty"`
}

func toRuleSetResponse(rs *rulesets.RuleSet) RuleSetResponse {
	return RuleSetResponse{
		ID:        rs.ID,
		Name:      rs.Name,
		Options:   rs.Options,
		CreatedAt: rs.CreatedAt,
	}
}
