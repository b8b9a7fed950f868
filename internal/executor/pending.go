package executor

import (
	"context"
	"fmt"

	"github.com/lockplane/initplane/internal/remedy"
	"github.com/lockplane/initplane/internal/tool"
)

// CheckAndApplyPending handles a database already believed fully migrated:
// a new release may still carry pending steps. It tolerates a branched
// history when the database is already at one of the heads, because the
// generic upgrade command errors out on diverged heads even when nothing
// needs to change.
func CheckAndApplyPending(ctx context.Context, deps Deps) (*Outcome, error) {
	log := deps.Logger.With("strategy", "check-and-apply-pending")
	outcome := &Outcome{}

	// Defensive re-check: a migrated classification can still be wrong if
	// the threshold check raced with a concurrent writer
	inv, err := deps.Inventory.Read(ctx)
	if err != nil {
		return outcome, fmt.Errorf("failed to re-read inventory: %w", err)
	}
	if inv.HasLedger && inv.CoreTablesPresent(deps.Policy.CoreTables) == 0 {
		log.Warn("stale ledger surfaced after classification, remediating and re-initializing")
		if err := remedy.DropStaleLedger(ctx, deps.DB, deps.LedgerTable, log); err != nil {
			return outcome, err
		}
		return FreshInit(ctx, deps)
	}

	heads, headsRes, err := deps.Tool.Heads(ctx)
	if err != nil {
		outcome.Diagnostic = headsRes.Output()
		return outcome, fmt.Errorf("failed to list migration heads: %w\ntool output:\n%s", err, headsRes.Output())
	}

	current := inv.LedgerRevisions

	// Multi-head tolerance: nothing to do beats blind conformance to the
	// tool's generic upgrade command
	if len(heads) > 1 && tool.AtAnyHead(current, heads) {
		log.Warn("migration history has unmerged branches and the database is already at a head; skipping upgrade",
			"heads", heads,
			"current", current)
		outcome.Success = true
		outcome.AppliedRevisions = current
		return outcome, nil
	}

	log.Info("applying pending migration steps to heads", "heads", heads, "current", current)
	res, err := deps.Tool.UpgradeToHeads(ctx)
	outcome.Diagnostic = res.Output()
	if err != nil {
		// The overlap diagnostic while already at a head demotes to the
		// same warning-and-continue outcome as above
		if tool.IsOverlappingRevisions(res.Output()) && tool.AtAnyHead(current, heads) {
			log.Warn("upgrade refused due to overlapping revisions but database is already at a head; treating as up to date",
				"heads", heads,
				"current", current)
			outcome.Success = true
			outcome.AppliedRevisions = current
			return outcome, nil
		}
		return outcome, fmt.Errorf("failed to apply pending steps: %w\ntool output:\n%s", err, res.Output())
	}

	outcome.Success = true
	outcome.AppliedRevisions = recordedRevisions(ctx, deps)
	log.Info("pending steps applied", "revisions", outcome.AppliedRevisions)
	return outcome, nil
}
