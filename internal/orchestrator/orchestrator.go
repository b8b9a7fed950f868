// Package orchestrator sequences a full migration run: probe, classify,
// remediate, select, execute, verify. Each stage either completes or the
// whole run fails; only within-stage operations retry. The orchestrator
// keeps no state across runs — every invocation re-derives truth from the
// live database, which is what makes it idempotent.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/lockplane/initplane/database"
	"github.com/lockplane/initplane/internal/classify"
	"github.com/lockplane/initplane/internal/config"
	"github.com/lockplane/initplane/internal/dbconn"
	"github.com/lockplane/initplane/internal/executor"
	"github.com/lockplane/initplane/internal/inventory"
	"github.com/lockplane/initplane/internal/lock"
	"github.com/lockplane/initplane/internal/probe"
	"github.com/lockplane/initplane/internal/remedy"
	"github.com/lockplane/initplane/internal/tool"
	"github.com/lockplane/initplane/internal/verify"
)

// Stage names, logged as each stage begins.
const (
	StageProbing     = "probing"
	StageClassifying = "classifying"
	StageRemediating = "stale-remediation"
	StageSelecting   = "selecting"
	StageExecuting   = "executing"
	StageVerifying   = "verifying"
)

// Orchestrator drives one run against one database target.
type Orchestrator struct {
	Config      *config.Config
	DatabaseURL string
	Environment string
	Logger      *slog.Logger

	// ToolRunner overrides the subprocess tool adapter, for tests.
	ToolRunner tool.Runner
	// Locker overrides the advisory lock, for tests.
	Locker lock.Lock
}

// RunReport summarizes a completed (or failed) run for the --report
// artifact and for logging.
type RunReport struct {
	Environment           string            `json:"environment"`
	Engine                string            `json:"engine"`
	State                 classify.State    `json:"state"`
	StaleLedgerRemediated bool              `json:"stale_ledger_remediated"`
	Strategy              classify.Strategy `json:"strategy"`
	Outcome               *executor.Outcome `json:"outcome,omitempty"`
	Verified              bool              `json:"verified"`
	DurationMs            int64             `json:"duration_ms"`
}

// Run executes the full pipeline. A nil error means classification,
// execution, and verification all passed; any error is fatal for the
// deployment and the process must exit non-zero.
func (o *Orchestrator) Run(ctx context.Context) (*RunReport, error) {
	start := time.Now()
	report := &RunReport{Environment: o.Environment}
	defer func() { report.DurationMs = time.Since(start).Milliseconds() }()

	oc := o.Config.Orchestrator

	db, engine, err := dbconn.Open(o.DatabaseURL)
	if err != nil {
		return report, err
	}
	defer func() { _ = db.Close() }()
	report.Engine = string(engine)

	introspector, err := dbconn.NewIntrospector(engine)
	if err != nil {
		return report, err
	}

	reader := &inventory.Reader{
		DB:           db,
		Introspector: introspector,
		LedgerTable:  oc.LedgerTable,
		LedgerColumn: oc.LedgerColumn,
	}
	policy := classify.Policy{
		CoreTables:        oc.CoreTables,
		MigratedThreshold: oc.MigratedThreshold,
	}

	// Probing
	o.Logger.Info("stage start", "stage", StageProbing, "engine", string(engine))
	prober := &probe.Prober{
		DB:          db,
		Engine:      engine,
		ConnStr:     o.DatabaseURL,
		MaxAttempts: oc.ProbeMaxAttempts,
		Delay:       oc.ProbeDelay(),
		Logger:      o.Logger,
	}
	if err := prober.Probe(ctx); err != nil {
		return report, fmt.Errorf("probing failed: %w", err)
	}

	// Classifying. An introspection failure is not fatal here: it
	// classifies as unknown and routes to the most conservative strategy.
	o.Logger.Info("stage start", "stage", StageClassifying)
	inv, invErr := reader.Read(ctx)
	if invErr != nil {
		o.Logger.Warn("introspection failed, classifying as unknown", "error", invErr)
		inv = nil
	}
	classification := classify.Classify(inv, policy)
	report.State = classification.State
	o.Logger.Info("database state classified",
		"state", string(classification.State),
		"stale_ledger", classification.StaleLedger,
		"core_tables_present", classification.CorePresent)

	// Stale-ledger remediation, before any strategy runs
	if classification.StaleLedger {
		o.Logger.Info("stage start", "stage", StageRemediating)
		if err := remedy.DropStaleLedger(ctx, db, oc.LedgerTable, o.Logger); err != nil {
			return report, fmt.Errorf("stale-ledger remediation failed: %w", err)
		}
		report.StaleLedgerRemediated = true
	}

	// Selecting
	o.Logger.Info("stage start", "stage", StageSelecting)
	strategy := classify.SelectStrategy(classification.State)
	report.Strategy = strategy
	o.Logger.Info("strategy selected", "strategy", string(strategy))

	// Advisory lock around the executing and verifying span
	if oc.LockEnabled() {
		runLock := o.Locker
		if runLock == nil {
			runLock = lock.New(engine, o.DatabaseURL, db, o.Logger)
		}
		if err := runLock.Acquire(ctx); err != nil {
			return report, fmt.Errorf("could not acquire run lock: %w", err)
		}
		defer func() {
			if err := runLock.Release(context.WithoutCancel(ctx)); err != nil {
				o.Logger.Warn("failed to release run lock", "error", err)
			}
		}()
	}

	// Executing
	o.Logger.Info("stage start", "stage", StageExecuting)
	deps := executor.Deps{
		DB:           db,
		Engine:       engine,
		Inventory:    reader,
		Introspector: introspector,
		Tool:         o.toolRunner(engine),
		Metadata: tool.MetadataPolicy{
			Dir:      o.metadataDir(),
			Required: o.Config.Tool.RequiredEntries,
		},
		Policy:      policy,
		LedgerTable: oc.LedgerTable,
		Logger:      o.Logger,
	}
	outcome, err := executor.Execute(ctx, deps, strategy)
	report.Outcome = outcome
	if err != nil {
		return report, fmt.Errorf("execution failed: %w", err)
	}

	// Verifying
	o.Logger.Info("stage start", "stage", StageVerifying)
	verifier := &verify.Verifier{
		Inventory:     reader,
		CoreTables:    oc.CoreTables,
		MinCoreTables: oc.VerifyMinCoreTables,
		MaxAttempts:   oc.VerifyMaxAttempts,
		Delay:         oc.VerifyDelay(),
		Logger:        o.Logger,
	}
	if err := verifier.Verify(ctx); err != nil {
		return report, fmt.Errorf("verification failed: %w", err)
	}
	report.Verified = true

	o.Logger.Info("migration run complete",
		"state", string(report.State),
		"strategy", string(report.Strategy),
		"duration_ms", time.Since(start).Milliseconds())
	return report, nil
}

func (o *Orchestrator) toolRunner(engine database.Engine) tool.Runner {
	if o.ToolRunner != nil {
		return o.ToolRunner
	}
	tc := o.Config.Tool
	return &tool.CLI{
		Binary:      tc.Binary,
		ExtraArgs:   tc.ExtraArgs,
		WorkDir:     tc.WorkDir,
		MetadataDir: tc.MetadataDir,
		DatabaseURL: o.DatabaseURL,
		Logger:      o.Logger,
	}
}

// metadataDir resolves the metadata directory relative to the tool's
// working directory.
func (o *Orchestrator) metadataDir() string {
	tc := o.Config.Tool
	if tc.WorkDir == "" || filepath.IsAbs(tc.MetadataDir) {
		return tc.MetadataDir
	}
	return filepath.Join(tc.WorkDir, tc.MetadataDir)
}
