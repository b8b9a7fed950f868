package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ConfigFileName is the file initplane looks for, walking up from the
// working directory to the project root.
const ConfigFileName = "initplane.toml"

// EnvironmentConfig describes a single named environment from initplane.toml.
type EnvironmentConfig struct {
	DatabaseURL string `toml:"database_url"`
}

// OrchestratorConfig holds the policy knobs for a run. Every value has a
// default; an empty [orchestrator] table is valid.
type OrchestratorConfig struct {
	// LedgerTable is the migration ledger table name.
	LedgerTable string `toml:"ledger_table"`
	// LedgerColumn is the column holding the applied revision id(s).
	LedgerColumn string `toml:"ledger_column"`
	// CoreTables is the canonical core table set used as the signal that a
	// migration actually completed.
	CoreTables []string `toml:"core_tables"`
	// MigratedThreshold is how many core tables must exist, alongside the
	// ledger, for the database to classify as migrated.
	MigratedThreshold int `toml:"migrated_threshold"`
	// VerifyMinCoreTables is how many core tables the post-run verifier
	// requires.
	VerifyMinCoreTables int `toml:"verify_min_core_tables"`

	ProbeMaxAttempts   int `toml:"probe_max_attempts"`
	ProbeDelaySeconds  int `toml:"probe_delay_seconds"`
	VerifyMaxAttempts  int `toml:"verify_max_attempts"`
	VerifyDelaySeconds int `toml:"verify_delay_seconds"`

	// Lock controls the advisory run lock held across the executing and
	// verifying stages. Defaults to on.
	Lock *bool `toml:"lock"`
}

// ToolConfig describes how to invoke the external migration tool.
type ToolConfig struct {
	// Binary is the migration tool executable.
	Binary string `toml:"binary"`
	// ExtraArgs are prepended to every invocation, before the verb.
	ExtraArgs []string `toml:"extra_args"`
	// WorkDir is the directory the tool runs in. Empty means the process
	// working directory.
	WorkDir string `toml:"work_dir"`
	// MetadataDir is the tool's metadata directory, relative to WorkDir.
	MetadataDir string `toml:"metadata_dir"`
	// RequiredEntries are the entries that must exist inside MetadataDir
	// for it to count as well-formed.
	RequiredEntries []string `toml:"required_entries"`
}

type Config struct {
	DefaultEnvironment string                       `toml:"default_environment"`
	Environments       map[string]EnvironmentConfig `toml:"environments"`
	Orchestrator       OrchestratorConfig           `toml:"orchestrator"`
	Tool               ToolConfig                   `toml:"tool"`
	ConfigFilePath     string                       `toml:"-"`
}

// LoadConfig finds and parses initplane.toml, walking up from the working
// directory until a project root marker is reached. A missing config file is
// not an error; defaults still apply.
func LoadConfig() (*Config, error) {
	startDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return LoadConfigFrom(startDir)
}

// LoadConfigFrom behaves like LoadConfig starting at the given directory.
func LoadConfigFrom(startDir string) (*Config, error) {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, err
			}

			var config Config
			if err := toml.Unmarshal(data, &config); err != nil {
				return nil, err
			}

			config.ConfigFilePath = configPath
			config.applyDefaults()
			return &config, nil
		}

		if isProjectRoot(dir) {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}

	config := &Config{}
	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	o := &c.Orchestrator
	if o.LedgerTable == "" {
		o.LedgerTable = "schema_migrations"
	}
	if o.LedgerColumn == "" {
		o.LedgerColumn = "version"
	}
	if len(o.CoreTables) == 0 {
		o.CoreTables = []string{"users", "clients", "projects", "time_entries", "invoices"}
	}
	if o.MigratedThreshold == 0 {
		o.MigratedThreshold = 3
	}
	if o.VerifyMinCoreTables == 0 {
		o.VerifyMinCoreTables = len(o.CoreTables)
	}
	if o.ProbeMaxAttempts == 0 {
		o.ProbeMaxAttempts = 30
	}
	if o.ProbeDelaySeconds == 0 {
		o.ProbeDelaySeconds = 2
	}
	if o.VerifyMaxAttempts == 0 {
		o.VerifyMaxAttempts = 3
	}
	if o.VerifyDelaySeconds == 0 {
		o.VerifyDelaySeconds = 3
	}

	t := &c.Tool
	if t.Binary == "" {
		t.Binary = "lockmigrate"
	}
	if t.MetadataDir == "" {
		t.MetadataDir = "migrations"
	}
	if len(t.RequiredEntries) == 0 {
		t.RequiredEntries = []string{"tool.ini", "versions"}
	}
}

// LockEnabled reports whether the advisory run lock should be taken.
func (o OrchestratorConfig) LockEnabled() bool {
	if o.Lock == nil {
		return true
	}
	return *o.Lock
}

// ProbeDelay returns the probe retry delay as a duration.
func (o OrchestratorConfig) ProbeDelay() time.Duration {
	return time.Duration(o.ProbeDelaySeconds) * time.Second
}

// VerifyDelay returns the verify retry delay as a duration.
func (o OrchestratorConfig) VerifyDelay() time.Duration {
	return time.Duration(o.VerifyDelaySeconds) * time.Second
}

// isProjectRoot checks if the directory is a project root based on common markers
func isProjectRoot(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err == nil {
		return true
	}
	return false
}
