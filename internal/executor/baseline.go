package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lockplane/initplane/internal/tool"
)

// ComprehensiveBaseline handles a database whose structure predates or
// diverges from the migration bookkeeping. It only ever records where the
// schema already is; it never applies schema changes against existing
// tables.
func ComprehensiveBaseline(ctx context.Context, deps Deps) (*Outcome, error) {
	log := deps.Logger.With("strategy", "comprehensive-baseline")
	outcome := &Outcome{}

	// 1. Column-level schema dump for postmortem diagnostics, even when the
	// rest of the run succeeds. Failure here is advisory only.
	if schema, err := deps.Introspector.IntrospectSchema(ctx, deps.DB); err != nil {
		log.Warn("could not introspect full schema for diagnostics", "error", err)
	} else if dump, err := json.Marshal(schema); err == nil {
		log.Info("existing schema before baseline", "schema", string(dump))
	}

	inv, err := deps.Inventory.Read(ctx)
	if err != nil {
		return outcome, fmt.Errorf("failed to read inventory: %w", err)
	}

	// 2. Ledger already present means there is nothing to baseline
	if inv.HasLedger {
		log.Info("migration ledger already present, nothing to baseline", "revisions", inv.LedgerRevisions)
		outcome.Success = true
		outcome.AppliedRevisions = inv.LedgerRevisions
		return outcome, nil
	}

	// 3. Metadata directory, same idempotent rule as fresh initialization
	if err := tool.EnsureMetadata(ctx, deps.Tool, deps.Metadata, log); err != nil {
		return outcome, err
	}

	// 4. Name collisions between canonical and existing tables warn loudly
	// but never abort: blocking an otherwise-safe baseline costs more than
	// the occasional naming coincidence
	for _, name := range deps.Policy.CoreTables {
		if _, ok := inv.ApplicationTables[name]; ok {
			log.Warn("existing table collides with a canonical application table name; baseline will record it as-is",
				"table", name)
		}
	}

	// 5. Author a baseline step describing the existing schema, then stamp
	// the ledger at the resulting revision
	revision, diag, err := authorBaseline(ctx, deps, log)
	if err != nil {
		// 6. Best-effort recovery: stamp directly to the earliest
		// already-authored step on disk
		log.Warn("baseline authoring failed, falling back to stamping the earliest authored step", "error", err)
		revision, err = earliestAuthoredRevision(deps)
		if err != nil {
			outcome.Diagnostic = diag
			return outcome, fmt.Errorf("baseline authoring failed and no authored step is available to stamp: %w", err)
		}
	}

	log.Info("stamping ledger at baseline revision", "revision", revision)
	res, err := deps.Tool.Stamp(ctx, revision)
	outcome.Diagnostic = res.Output()
	if err != nil {
		return outcome, fmt.Errorf("failed to stamp baseline revision %s: %w\ntool output:\n%s", revision, err, res.Output())
	}

	outcome.Success = true
	outcome.AppliedRevisions = recordedRevisions(ctx, deps)
	log.Info("baseline recorded", "revision", revision)
	return outcome, nil
}

// authorBaseline authors the baseline step and identifies the resulting
// revision by diffing the step files before and after.
func authorBaseline(ctx context.Context, deps Deps, log *slog.Logger) (string, string, error) {
	before, err := deps.Metadata.StepFiles()
	if err != nil {
		return "", "", fmt.Errorf("failed to list step files: %w", err)
	}
	beforeSet := make(map[string]struct{}, len(before))
	for _, name := range before {
		beforeSet[name] = struct{}{}
	}

	res, err := deps.Tool.Author(ctx, "baseline existing schema")
	if err != nil {
		return "", res.Output(), fmt.Errorf("author step failed: %w", err)
	}
	validateAuthoredSQL(deps, log)

	after, err := deps.Metadata.StepFiles()
	if err != nil {
		return "", res.Output(), fmt.Errorf("failed to list step files after authoring: %w", err)
	}
	for _, name := range after {
		if _, ok := beforeSet[name]; !ok {
			return tool.RevisionFromStepFile(name), res.Output(), nil
		}
	}

	// No new file appeared; if the history has exactly one head, that must
	// be the baseline
	heads, headsRes, err := deps.Tool.Heads(ctx)
	if err != nil {
		return "", headsRes.Output(), fmt.Errorf("could not determine baseline revision: %w", err)
	}
	if len(heads) == 1 {
		return heads[0], res.Output(), nil
	}
	return "", res.Output(), fmt.Errorf("could not determine baseline revision: %d heads and no new step file", len(heads))
}

// earliestAuthoredRevision takes the earliest step file by name and extracts
// its revision id.
func earliestAuthoredRevision(deps Deps) (string, error) {
	files, err := deps.Metadata.StepFiles()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no authored step files in %s", deps.Metadata.StepsDir())
	}
	return tool.RevisionFromStepFile(files[0]), nil
}
