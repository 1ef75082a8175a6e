package migrations

import (
	"io"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
)

func TestEmbeddedMigrationsPair(t *testing.T) {
	src, err := iofs.New(files, ".")
	if err != nil {
		t.Fatalf("iofs.New() failed: %v", err)
	}
	defer src.Close()

	version, err := src.First()
	if err != nil {
		t.Fatalf("First() failed: %v", err)
	}
	if version != 1 {
		t.Errorf("first version = %d, want 1", version)
	}

	for {
		up, _, err := src.ReadUp(version)
		if err != nil {
			t.Fatalf("version %d has no up migration: %v", version, err)
		}
		body, err := io.ReadAll(up)
		up.Close()
		if err != nil {
			t.Fatalf("read up migration %d: %v", version, err)
		}
		if strings.TrimSpace(string(body)) == "" {
			t.Errorf("up migration %d is empty", version)
		}

		down, _, err := src.ReadDown(version)
		if err != nil {
			t.Fatalf("version %d has no down migration: %v", version, err)
		}
		down.Close()

		next, err := src.Next(version)
		if err != nil {
			break
		}
		version = next
	}
}

func TestSchemaDeclaresRuleColumns(t *testing.T) {
	body, err := files.ReadFile("000001_create_rulesets.up.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}

	for _, col := range []string{"ruleset_id", "language", "pattern", "type", "guard", "position", "active", "omit_empty_format", "match_timeout_ms"} {
		if !strings.Contains(string(body), col) {
			t.Errorf("schema does not declare %s", col)
		}
	}
}
