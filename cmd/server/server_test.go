package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/liamcoop/timestamps/rules"
	"github.com/liamcoop/timestamps/rulesets"
	"github.com/liamcoop/timestamps/timestamp"
)

// 2026-03-04 14:30:15 UTC
var fixedNow = time.Unix(1772634615, 0).UTC()

func newTestServer(t *testing.T) *Server {
	t.Helper()
	engine, err := rules.NewDefaultEngine(rules.WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("NewDefaultEngine() failed: %v", err)
	}
	return newServer(engine, nil, nil)
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	resp := decode[HealthResponse](t, w)
	if resp.Status != "healthy" {
		t.Errorf("Status = %s, want healthy", resp.Status)
	}
	if resp.Rules != len(rules.DefaultRules()) {
		t.Errorf("Rules = %d, want %d", resp.Rules, len(rules.DefaultRules()))
	}
	if resp.RuleSetsLoaded != 0 {
		t.Errorf("RuleSetsLoaded = %d, want 0", resp.RuleSetsLoaded)
	}
	if _, ok := resp.Counters["conversions"]; !ok {
		t.Errorf("Counters = %v, want a conversions entry", resp.Counters)
	}
}

func TestConvert(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		req  ConvertRequest
		want string
	}{
		{
			name: "engine clock",
			req:  ConvertRequest{Text: "<2 days ago> 〈今〉"},
			want: "<t:1772461815:> <t:1772634615>",
		},
		{
			name: "pinned now",
			req:  ConvertRequest{Text: "<1 days ago>", Now: ptr(int64(1000000))},
			want: "<t:913600:>",
		},
		{
			name: "format token",
			req:  ConvertRequest{Text: "meeting <in 5 minutes R>"},
			want: "meeting <t:1772634915:R>",
		},
		{
			name: "nothing to convert",
			req:  ConvertRequest{Text: "plain text"},
			want: "plain text",
		},
		{
			name: "empty text",
			req:  ConvertRequest{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, s, http.MethodPost, "/api/v1/convert", tt.req)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}

			resp := decode[ConvertResponse](t, w)
			if resp.Text != tt.want {
				t.Errorf("Text = %q, want %q", resp.Text, tt.want)
			}
			if resp.ConversionTime == "" {
				t.Error("ConversionTime should be set")
			}
			if resp.Replacements == nil {
				t.Error("Replacements should be an empty list, not null")
			}
		})
	}
}

func TestConvertReportsReplacements(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/v1/convert", ConvertRequest{Text: "a <2 days ago:F>"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	// Markup reaches the client unescaped.
	if body := w.Body.String(); !strings.Contains(body, `"markup":"<t:1772461815:F>"`) {
		t.Errorf("body = %s, want raw markup", body)
	}

	resp := decode[ConvertResponse](t, w)
	if resp.Now != fixedNow.Unix() {
		t.Errorf("Now = %d, want %d", resp.Now, fixedNow.Unix())
	}
	if len(resp.Replacements) != 1 {
		t.Fatalf("got %d replacements, want 1", len(resp.Replacements))
	}

	rep := resp.Replacements[0]
	if rep.RuleID != "en-days-ago" || rep.Start != 2 || rep.End != 16 {
		t.Errorf("replacement = %+v, want en-days-ago at [2,16)", rep)
	}
	if rep.Source != "<2 days ago:F>" || rep.Markup != "<t:1772461815:F>" {
		t.Errorf("replacement = %q -> %q", rep.Source, rep.Markup)
	}
}

func TestConvertPinnedNowIsLocal(t *testing.T) {
	prev := time.Local
	time.Local = time.FixedZone("JST", 9*60*60)
	t.Cleanup(func() { time.Local = prev })

	s := newTestServer(t)
	w := doRequest(t, s, http.MethodPost, "/api/v1/convert",
		ConvertRequest{Text: "〈10日〉", Now: ptr(fixedNow.Unix())})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	// Midnight on the 10th, Tokyo time.
	if resp := decode[ConvertResponse](t, w); resp.Text != "<t:1773068400:>" {
		t.Errorf("Text = %q, want <t:1773068400:>", resp.Text)
	}
}

func TestConvertErrors(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/convert", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	resp := decode[ErrorResponse](t, w)
	if resp.Error != "invalid request body" || resp.Details == "" {
		t.Errorf("error response = %+v", resp)
	}

	// Without a database there are no rule sets to pick from.
	w = doRequest(t, s, http.MethodPost, "/api/v1/convert", ConvertRequest{Text: "x", RuleSetID: "abc"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestListDefaultRules(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/v1/rules", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	resp := decode[RulesListResponse](t, w)
	if len(resp.Rules) != len(rules.DefaultRules()) {
		t.Fatalf("got %d rules, want %d", len(resp.Rules), len(rules.DefaultRules()))
	}
	if resp.Rules[0].ID != "en-days-ago" || resp.Rules[0].Position != 1 {
		t.Errorf("first rule = %s at %d, want en-days-ago at 1", resp.Rules[0].ID, resp.Rules[0].Position)
	}
}

func TestRuleSetRoutesNeedDatabase(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/v1/rulesets", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRuleRequestRequiresType(t *testing.T) {
	engine, err := rules.NewDefaultEngine()
	if err != nil {
		t.Fatalf("NewDefaultEngine() failed: %v", err)
	}
	// The type check runs before the manager touches the database.
	s := newServer(engine, rulesets.NewManager(nil), nil)

	body := map[string]string{"id": "x", "pattern": `(?<days>\d+) days ago`}
	for _, method := range []string{http.MethodPost, http.MethodPut} {
		path := "/api/v1/rulesets/abc/rules"
		if method == http.MethodPut {
			path += "/x"
		}

		w := doRequest(t, s, method, path, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", method, w.Code)
			continue
		}
		if resp := decode[ErrorResponse](t, w); resp.Error != "type is required" {
			t.Errorf("%s error = %q, want type is required", method, resp.Error)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("rule set x: %w", rulesets.ErrRuleSetNotFound), http.StatusNotFound},
		{fmt.Errorf("rule x: %w", rules.ErrRuleNotFound), http.StatusNotFound},
		{fmt.Errorf("rule x: %w", rules.ErrRuleExists), http.StatusConflict},
		{errors.New("pattern cannot be empty"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRuleRequestToRule(t *testing.T) {
	req := RuleRequest{Name: "n", Pattern: `now`, Type: ptr(timestamp.Past)}
	rule := req.toRule("id-1")
	if rule.ID != "id-1" || rule.Type != timestamp.Past {
		t.Errorf("toRule() = %+v", rule)
	}
	if !rule.Active {
		t.Error("rules are active unless stated otherwise")
	}

	req.Active = ptr(false)
	if req.toRule("id-1").Active {
		t.Error("Active = false should carry over")
	}
}

func ptr[T any](v T) *T { return &v }
