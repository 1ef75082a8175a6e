package timestamp

import (
	"encoding/json"
	"testing"
)

func TestParseTemporalType(t *testing.T) {
	tests := []struct {
		input string
		want  TemporalType
	}{
		{"absolute", Absolute},
		{"abusolute", Absolute},
		{"future", Future},
		{"past", Past},
		{"now", Now},
		{" Past ", Past},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTemporalType(tt.input)
			if err != nil {
				t.Fatalf("ParseTemporalType(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseTemporalType(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	if _, err := ParseTemporalType("yesterday"); err == nil {
		t.Error("ParseTemporalType(yesterday) should fail")
	}
}

func TestTemporalTypeJSON(t *testing.T) {
	var rule struct {
		Type TemporalType `json:"type"`
	}
	if err := json.Unmarshal([]byte(`{"type":"abusolute"}`), &rule); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if rule.Type != Absolute {
		t.Errorf("Type = %v, want absolute", rule.Type)
	}

	b, err := json.Marshal(rule)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	if string(b) != `{"type":"absolute"}` {
		t.Errorf("Marshal() = %s", b)
	}

	if err := json.Unmarshal([]byte(`{"type":"later"}`), &rule); err == nil {
		t.Error("Unmarshal() should reject an unknown type")
	}
}

func TestFields(t *testing.T) {
	fs := Fields{Days: "12", Seconds: "x"}

	if !fs.Has(Days) || fs.Has(Years) {
		t.Errorf("Has() wrong for %v", fs)
	}
	if got := fs.Int(Days); got != 12 {
		t.Errorf("Int(Days) = %d, want 12", got)
	}
	// non-numeric capture counts as zero
	if got := fs.Int(Seconds); got != 0 {
		t.Errorf("Int(Seconds) = %d, want 0", got)
	}
	if got := fs.Int(Hours); got != 0 {
		t.Errorf("Int(Hours) = %d, want 0", got)
	}

	highest, ok := fs.Highest()
	if !ok || highest != Days {
		t.Errorf("Highest() = %v, %t, want days", highest, ok)
	}

	if _, ok := (Fields{}).Highest(); ok {
		t.Error("Highest() of no fields should report none")
	}
	if _, ok := (Fields{Hours: ""}).Highest(); ok {
		t.Error("an empty capture is absent")
	}
}

func TestFieldByName(t *testing.T) {
	for _, f := range AllFields {
		got, ok := FieldByName(f.String())
		if !ok || got != f {
			t.Errorf("FieldByName(%s) = %v, %t", f, got, ok)
		}
	}
	if _, ok := FieldByName("weeks"); ok {
		t.Error("FieldByName(weeks) should fail")
	}

	for name, want := range map[string]bool{"format": true, "minutes": true, "zone": false} {
		if got := IsGroupName(name); got != want {
			t.Errorf("IsGroupName(%s) = %t, want %t", name, got, want)
		}
	}
}

func TestMatchCaptured(t *testing.T) {
	if (Match{}).Captured() {
		t.Error("empty match should not count as captured")
	}
	if !(Match{Format: "R"}).Captured() {
		t.Error("format alone counts as captured")
	}
	if !(Match{Fields: Fields{Days: "2"}}).Captured() {
		t.Error("a field counts as captured")
	}
}
