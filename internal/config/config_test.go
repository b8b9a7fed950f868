package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfigFrom_ParsesToml(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ConfigFileName), `
default_environment = "staging"

[environments.staging]
database_url = "postgres://db.example.com/app"

[orchestrator]
ledger_table = "alembic_version"
ledger_column = "version_num"
core_tables = ["users", "accounts"]
migrated_threshold = 1
probe_max_attempts = 10

[tool]
binary = "alembic"
metadata_dir = "db/migrations"
`)

	config, err := LoadConfigFrom(dir)
	if err != nil {
		t.Fatalf("LoadConfigFrom() error: %v", err)
	}

	if config.DefaultEnvironment != "staging" {
		t.Errorf("default_environment = %q, want staging", config.DefaultEnvironment)
	}
	if got := config.Environments["staging"].DatabaseURL; got != "postgres://db.example.com/app" {
		t.Errorf("staging database_url = %q", got)
	}
	if config.Orchestrator.LedgerTable != "alembic_version" {
		t.Errorf("ledger_table = %q", config.Orchestrator.LedgerTable)
	}
	if config.Orchestrator.MigratedThreshold != 1 {
		t.Errorf("migrated_threshold = %d, want 1", config.Orchestrator.MigratedThreshold)
	}
	if config.Tool.Binary != "alembic" {
		t.Errorf("tool binary = %q, want alembic", config.Tool.Binary)
	}

	// Unset values still get defaults
	if config.Orchestrator.VerifyMaxAttempts != 3 {
		t.Errorf("verify_max_attempts default = %d, want 3", config.Orchestrator.VerifyMaxAttempts)
	}
	if config.Orchestrator.VerifyMinCoreTables != 2 {
		t.Errorf("verify_min_core_tables should default to the core set size, got %d", config.Orchestrator.VerifyMinCoreTables)
	}
}

func TestLoadConfigFrom_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	// Mark the directory as a project root so the walk stops here
	writeFile(t, filepath.Join(dir, "go.mod"), "module example.com/app\n")

	config, err := LoadConfigFrom(dir)
	if err != nil {
		t.Fatalf("LoadConfigFrom() error: %v", err)
	}

	o := config.Orchestrator
	if o.LedgerTable != "schema_migrations" {
		t.Errorf("ledger_table default = %q", o.LedgerTable)
	}
	if o.LedgerColumn != "version" {
		t.Errorf("ledger_column default = %q", o.LedgerColumn)
	}
	if len(o.CoreTables) != 5 {
		t.Errorf("core_tables default size = %d, want 5", len(o.CoreTables))
	}
	if o.MigratedThreshold != 3 {
		t.Errorf("migrated_threshold default = %d, want 3", o.MigratedThreshold)
	}
	if o.ProbeMaxAttempts != 30 || o.ProbeDelay() != 2*time.Second {
		t.Errorf("probe defaults = %d attempts, %v delay", o.ProbeMaxAttempts, o.ProbeDelay())
	}
	if !o.LockEnabled() {
		t.Error("lock should default to enabled")
	}
	if config.Tool.Binary != "lockmigrate" {
		t.Errorf("tool binary default = %q", config.Tool.Binary)
	}
	if config.ConfigFilePath != "" {
		t.Errorf("no config file should mean empty path, got %q", config.ConfigFilePath)
	}
}

func TestLoadConfigFrom_WalksUpToProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ConfigFileName), `default_environment = "prod"`)

	nested := filepath.Join(root, "services", "api")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfigFrom(nested)
	if err != nil {
		t.Fatalf("LoadConfigFrom() error: %v", err)
	}
	if config.DefaultEnvironment != "prod" {
		t.Errorf("expected the config two levels up to be found, got default_environment = %q", config.DefaultEnvironment)
	}
	if config.ConfigFilePath != filepath.Join(root, ConfigFileName) {
		t.Errorf("config path = %q", config.ConfigFilePath)
	}
}

func TestLockDisabled(t *testing.T) {
	off := false
	o := OrchestratorConfig{Lock: &off}
	if o.LockEnabled() {
		t.Error("lock = false must disable the run lock")
	}
}

func TestResolveEnvironment_FromConfig(t *testing.T) {
	config := &Config{
		DefaultEnvironment: "local",
		Environments: map[string]EnvironmentConfig{
			"local": {DatabaseURL: "sqlite://./app.db"},
		},
	}

	resolved, err := ResolveEnvironment(config, "")
	if err != nil {
		t.Fatalf("ResolveEnvironment() error: %v", err)
	}
	if resolved.Name != "local" {
		t.Errorf("name = %q, want local", resolved.Name)
	}
	if resolved.DatabaseURL != "sqlite://./app.db" {
		t.Errorf("database url = %q", resolved.DatabaseURL)
	}
	if !resolved.FromConfig {
		t.Error("expected FromConfig")
	}
}

func TestResolveEnvironment_DotenvNextToConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env.staging"), "DATABASE_URL=postgres://dotenv.example.com/app\n")

	config := &Config{ConfigFilePath: filepath.Join(dir, ConfigFileName)}

	resolved, err := ResolveEnvironment(config, "staging")
	if err != nil {
		t.Fatalf("ResolveEnvironment() error: %v", err)
	}
	if resolved.DatabaseURL != "postgres://dotenv.example.com/app" {
		t.Errorf("database url = %q", resolved.DatabaseURL)
	}
	if !resolved.FromDotenv {
		t.Error("expected FromDotenv")
	}
}

func TestResolveEnvironment_FallsBackToProcessEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env.example.com/app")

	resolved, err := ResolveEnvironment(&Config{}, "prod")
	if err != nil {
		t.Fatalf("ResolveEnvironment() error: %v", err)
	}
	if resolved.DatabaseURL != "postgres://env.example.com/app" {
		t.Errorf("database url = %q", resolved.DatabaseURL)
	}
	if resolved.FromConfig || resolved.FromDotenv {
		t.Error("process env fallback must not claim config or dotenv origin")
	}
}

func TestResolveEnvironment_ConfigWinsOverEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env.example.com/app")

	config := &Config{
		Environments: map[string]EnvironmentConfig{
			"prod": {DatabaseURL: "postgres://config.example.com/app"},
		},
	}

	resolved, err := ResolveEnvironment(config, "prod")
	if err != nil {
		t.Fatalf("ResolveEnvironment() error: %v", err)
	}
	if resolved.DatabaseURL != "postgres://config.example.com/app" {
		t.Errorf("config must win over the process environment, got %q", resolved.DatabaseURL)
	}
}
