package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/lockplane/initplane/internal/classify"
	"github.com/lockplane/initplane/internal/config"
	"github.com/lockplane/initplane/internal/tool"
)

var coreTables = []string{"users", "clients", "projects", "time_entries", "invoices"}

// scriptedTool stands in for the external migration tool. It operates on the
// same database file the orchestrator targets, through its own connection.
type scriptedTool struct {
	db     *sql.DB
	policy tool.MetadataPolicy
	heads  []string
	calls  []string
}

func newScriptedTool(t *testing.T, dbPath string, policy tool.MetadataPolicy) *scriptedTool {
	t.Helper()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to open SQLite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return &scriptedTool{db: db, policy: policy, heads: []string{"h1"}}
}

func (s *scriptedTool) Init(ctx context.Context) (tool.Result, error) {
	s.calls = append(s.calls, "init")
	if err := os.MkdirAll(filepath.Join(s.policy.Dir, "versions"), 0755); err != nil {
		return tool.Result{}, err
	}
	return tool.Result{}, os.WriteFile(filepath.Join(s.policy.Dir, "tool.ini"), []byte("[tool]\n"), 0644)
}

func (s *scriptedTool) Author(ctx context.Context, message string) (tool.Result, error) {
	s.calls = append(s.calls, "author")
	files, err := s.policy.StepFiles()
	if err != nil {
		return tool.Result{}, err
	}
	name := fmt.Sprintf("h%d_step.sql", len(files)+1)
	return tool.Result{}, os.WriteFile(filepath.Join(s.policy.StepsDir(), name), []byte("-- "+message+"\n"), 0644)
}

func (s *scriptedTool) Heads(ctx context.Context) ([]string, tool.Result, error) {
	s.calls = append(s.calls, "heads")
	return s.heads, tool.Result{}, nil
}

func (s *scriptedTool) Current(ctx context.Context) ([]string, tool.Result, error) {
	s.calls = append(s.calls, "current")
	return nil, tool.Result{}, nil
}

func (s *scriptedTool) UpgradeToHeads(ctx context.Context) (tool.Result, error) {
	s.calls = append(s.calls, "upgrade")
	for _, name := range coreTables {
		if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+name+` (id INTEGER PRIMARY KEY)`); err != nil {
			return tool.Result{}, err
		}
	}
	return tool.Result{}, s.stamp(ctx, s.heads[0])
}

func (s *scriptedTool) Stamp(ctx context.Context, revision string) (tool.Result, error) {
	s.calls = append(s.calls, "stamp "+revision)
	return tool.Result{}, s.stamp(ctx, revision)
}

func (s *scriptedTool) stamp(ctx context.Context, revision string) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT NOT NULL)`); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, revision)
	return err
}

var _ tool.Runner = (*scriptedTool)(nil)

func setupRun(t *testing.T) (*Orchestrator, *scriptedTool, string) {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "app.db")

	lockOff := false
	cfg := &config.Config{
		Orchestrator: config.OrchestratorConfig{
			LedgerTable:         "schema_migrations",
			LedgerColumn:        "version",
			CoreTables:          coreTables,
			MigratedThreshold:   3,
			VerifyMinCoreTables: 5,
			ProbeMaxAttempts:    2,
			ProbeDelaySeconds:   1,
			VerifyMaxAttempts:   1,
			VerifyDelaySeconds:  1,
			Lock:                &lockOff,
		},
		Tool: config.ToolConfig{
			Binary:          "lockmigrate",
			WorkDir:         dir,
			MetadataDir:     "migrations",
			RequiredEntries: []string{"tool.ini", "versions"},
		},
	}

	policy := tool.MetadataPolicy{
		Dir:      filepath.Join(dir, "migrations"),
		Required: []string{"tool.ini", "versions"},
	}
	fake := newScriptedTool(t, dbPath, policy)

	orch := &Orchestrator{
		Config:      cfg,
		DatabaseURL: dbPath,
		Environment: "test",
		Logger:      slog.New(slog.NewTextHandler(os.Stderr, nil)),
		ToolRunner:  fake,
	}
	return orch, fake, dbPath
}

func TestRun_FreshDatabase(t *testing.T) {
	orch, _, _ := setupRun(t)

	report, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if report.State != classify.StateFresh {
		t.Errorf("state = %v, want fresh", report.State)
	}
	if report.Strategy != classify.StrategyFreshInit {
		t.Errorf("strategy = %v, want fresh-init", report.Strategy)
	}
	if !report.Verified {
		t.Error("expected the run to verify")
	}
	if report.Engine != "sqlite" {
		t.Errorf("engine = %q, want sqlite", report.Engine)
	}
	if report.Outcome == nil || !report.Outcome.Success {
		t.Error("expected a successful outcome")
	}
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	orch, fake, _ := setupRun(t)
	ctx := context.Background()

	if _, err := orch.Run(ctx); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}
	upgradesAfterFirst := countCalls(fake.calls, "upgrade")

	report, err := orch.Run(ctx)
	if err != nil {
		t.Fatalf("second Run() error: %v", err)
	}

	if report.State != classify.StateMigrated {
		t.Errorf("second run state = %v, want migrated", report.State)
	}
	if report.Strategy != classify.StrategyCheckAndApplyPending {
		t.Errorf("second run strategy = %v, want check-and-apply-pending", report.Strategy)
	}
	if !report.Verified {
		t.Error("expected the second run to verify")
	}

	// The second upgrade is a no-op against an already-stamped database,
	// but it must still succeed.
	if got := countCalls(fake.calls, "upgrade"); got != upgradesAfterFirst+1 {
		t.Errorf("upgrade calls after second run = %d, want %d", got, upgradesAfterFirst+1)
	}
}

func TestRun_StaleLedgerIsRemediated(t *testing.T) {
	orch, fake, _ := setupRun(t)

	// A ledger stamped to a revision on an otherwise empty database
	if _, err := fake.db.Exec(`CREATE TABLE schema_migrations (version TEXT NOT NULL)`); err != nil {
		t.Fatal(err)
	}
	if _, err := fake.db.Exec(`INSERT INTO schema_migrations (version) VALUES ('r_gone')`); err != nil {
		t.Fatal(err)
	}

	report, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if report.State != classify.StateFresh {
		t.Errorf("state = %v, want fresh after stale-ledger collapse", report.State)
	}
	if !report.StaleLedgerRemediated {
		t.Error("expected the stale ledger to be remediated")
	}
	if report.Strategy != classify.StrategyFreshInit {
		t.Errorf("strategy = %v, want fresh-init", report.Strategy)
	}
	if !report.Verified {
		t.Error("expected the run to verify")
	}

	// The phantom revision must be gone from the rebuilt ledger
	var count int
	if err := fake.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = 'r_gone'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Error("stale revision survived remediation")
	}
}

func TestRun_LegacyDatabaseGetsBaselined(t *testing.T) {
	orch, fake, _ := setupRun(t)

	// Structure exists but bookkeeping never did
	for _, name := range coreTables {
		if _, err := fake.db.Exec(`CREATE TABLE ` + name + ` (id INTEGER PRIMARY KEY)`); err != nil {
			t.Fatal(err)
		}
	}

	report, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if report.State != classify.StateLegacy {
		t.Errorf("state = %v, want legacy", report.State)
	}
	if report.Strategy != classify.StrategyComprehensiveBaseline {
		t.Errorf("strategy = %v, want comprehensive-baseline", report.Strategy)
	}
	if countCalls(fake.calls, "upgrade") != 0 {
		t.Errorf("baseline must not apply schema changes, calls: %v", fake.calls)
	}
	if !report.Verified {
		t.Error("expected the run to verify")
	}
}

func TestMetadataDir_Resolution(t *testing.T) {
	tests := []struct {
		workDir     string
		metadataDir string
		want        string
	}{
		{"", "migrations", "migrations"},
		{"/srv/app", "migrations", "/srv/app/migrations"},
		{"/srv/app", "/etc/migrations", "/etc/migrations"},
	}

	for _, tt := range tests {
		o := &Orchestrator{Config: &config.Config{
			Tool: config.ToolConfig{WorkDir: tt.workDir, MetadataDir: tt.metadataDir},
		}}
		if got := o.metadataDir(); got != tt.want {
			t.Errorf("metadataDir() with work_dir=%q metadata_dir=%q = %q, want %q",
				tt.workDir, tt.metadataDir, got, tt.want)
		}
	}
}

func countCalls(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name {
			n++
		}
	}
	return n
}
