package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lockplane/initplane/database"
	"github.com/lockplane/initplane/internal/remedy"
	"github.com/lockplane/initplane/internal/sqlcheck"
	"github.com/lockplane/initplane/internal/tool"
)

// FreshInit bootstraps migration tooling metadata and applies every known
// step from the beginning. Each sub-step is independently idempotent.
func FreshInit(ctx context.Context, deps Deps) (*Outcome, error) {
	log := deps.Logger.With("strategy", "fresh-init")
	outcome := &Outcome{}

	// 1. Metadata directory: skip if well-formed, recreate if malformed
	if err := tool.EnsureMetadata(ctx, deps.Tool, deps.Metadata, log); err != nil {
		return outcome, err
	}

	// 2. One-time bootstrap for environments where step files were never
	// committed: author a step capturing the full target schema
	steps, err := deps.Metadata.StepFiles()
	if err != nil {
		return outcome, fmt.Errorf("failed to list migration step files: %w", err)
	}
	if len(steps) == 0 {
		log.Info("no migration step files exist, authoring initial schema step")
		res, err := deps.Tool.Author(ctx, "initial schema")
		if err != nil {
			outcome.Diagnostic = res.Output()
			return outcome, fmt.Errorf("failed to author initial schema step: %w\ntool output:\n%s", err, res.Output())
		}
		validateAuthoredSQL(deps, log)
	}

	// 3. A ledger stamped to a revision while the database has zero
	// application tables is stale and must be dropped before upgrading
	inv, err := deps.Inventory.Read(ctx)
	if err != nil {
		return outcome, fmt.Errorf("failed to re-read inventory: %w", err)
	}
	if inv.HasLedger && inv.CoreTablesPresent(deps.Policy.CoreTables) == 0 {
		if err := remedy.DropStaleLedger(ctx, deps.DB, deps.LedgerTable, log); err != nil {
			return outcome, err
		}
	}

	// 4. Apply everything up to the set of heads
	log.Info("applying all migration steps to heads")
	res, err := deps.Tool.UpgradeToHeads(ctx)
	outcome.Diagnostic = res.Output()
	if err != nil {
		// 5. Surface the full diagnostic output, not just the exit code
		return outcome, fmt.Errorf("fresh initialization failed: %w\ntool output:\n%s", err, res.Output())
	}

	outcome.Success = true
	outcome.AppliedRevisions = recordedRevisions(ctx, deps)
	log.Info("fresh initialization complete", "revisions", outcome.AppliedRevisions)
	return outcome, nil
}

// validateAuthoredSQL runs the advisory pg_query check over authored step
// files. Postgres targets only; findings are logged, never fatal.
func validateAuthoredSQL(deps Deps, log *slog.Logger) {
	if deps.Engine != database.EnginePostgres {
		return
	}
	files, err := deps.Metadata.StepFiles()
	if err != nil {
		log.Warn("could not list step files for SQL validation", "error", err)
		return
	}
	for _, issue := range sqlcheck.ValidateStepFiles(deps.Metadata.StepsDir(), files) {
		log.Warn("authored step SQL failed validation", "file", issue.File, "issue", issue.Message)
	}
}
