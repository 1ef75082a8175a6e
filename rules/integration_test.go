//go:build integration
// +build integration

package rules

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/timestamps/migrations"
	"github.com/liamcoop/timestamps/timestamp"
)

// setupTestDB starts a PostgreSQL container with the schema applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "timestamps_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test password=test dbname=timestamps_test sslmode=disable", host, port.Port())

	var db *sql.DB
	for i := 0; i < 30; i++ {
		db, err = sql.Open("postgres", connStr)
		if err == nil {
			if err = db.Ping(); err == nil {
				break
			}
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	// The migrator owns its own handle so closing it leaves db usable.
	migrateDB, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open migration connection: %v", err)
	}
	if err := migrations.Up(migrateDB); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	migrateDB.Close()

	t.Cleanup(func() { db.Close() })
	return db
}

func createRuleSet(t *testing.T, db *sql.DB, name string) string {
	t.Helper()
	id := uuid.NewString()
	if _, err := db.Exec(`INSERT INTO rulesets (id, name) VALUES ($1, $2)`, id, name); err != nil {
		t.Fatalf("Failed to create rule set: %v", err)
	}
	return id
}

func TestPostgresRuleStoreContract(t *testing.T) {
	db := setupTestDB(t)

	testRuleStoreContract(t, func(t *testing.T) RuleStore {
		return NewPostgresRuleStore(db, createRuleSet(t, db, t.Name()))
	})
}

func TestPostgresRuleStoreIsolatesRuleSets(t *testing.T) {
	db := setupTestDB(t)

	first := NewPostgresRuleStore(db, createRuleSet(t, db, "first"))
	second := NewPostgresRuleStore(db, createRuleSet(t, db, "second"))

	// The same rule ID may exist once per rule set.
	for _, store := range []*PostgresRuleStore{first, second} {
		if err := store.Add(&Rule{ID: "ja-now", Pattern: `今`, Type: timestamp.Now, Active: true}); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
	}

	if err := first.Delete("ja-now"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := second.Get("ja-now"); err != nil {
		t.Errorf("deleting from one rule set touched the other: %v", err)
	}
}

func TestPostgresEngineWithDefaultRules(t *testing.T) {
	db := setupTestDB(t)
	store := NewPostgresRuleStore(db, createRuleSet(t, db, "defaults"))

	for _, rule := range DefaultRules() {
		if err := store.Add(rule); err != nil {
			t.Fatalf("Add(%s) failed: %v", rule.ID, err)
		}
	}

	engine, err := NewEngine(store, WithClock(fixedClock))
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}

	tests := []struct{ input, want string }{
		{"〈今〉", "<t:1772634615>"},
		{"<2 days ago>", "<t:1772461815:>"},
		{"〈2023年12月31日11時23分45秒〉", "<t:1706700225:>"},
	}
	for _, tt := range tests {
		if got := engine.Convert(tt.input); got != tt.want {
			t.Errorf("Convert(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}

	rule := &Rule{ID: "en-soon", Language: "en", Pattern: `soon`, Type: timestamp.Now, Active: true}
	if err := engine.AddRule(rule); err != nil {
		t.Fatalf("AddRule() failed: %v", err)
	}
	if rule.Position != len(DefaultRules())+1 {
		t.Errorf("appended rule Position = %d, want %d", rule.Position, len(DefaultRules())+1)
	}
	if got := engine.Convert("<soon>"); got != "<t:1772634615>" {
		t.Errorf("Convert(<soon>) = %q", got)
	}
}
