// Package executor implements the three remediation strategies. Each
// executor drives the external migration tool in a fixed sequence and
// interprets its exit status; sub-steps run strictly in order because later
// steps assume earlier steps' postconditions.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lockplane/initplane/database"
	"github.com/lockplane/initplane/internal/classify"
	"github.com/lockplane/initplane/internal/inventory"
	"github.com/lockplane/initplane/internal/tool"
)

// Deps carries everything an executor needs for one run. All values are
// immutable for the run; there is no executor-level state.
type Deps struct {
	DB           *sql.DB
	Engine       database.Engine
	Inventory    *inventory.Reader
	Introspector database.Introspector
	Tool         tool.Runner
	Metadata     tool.MetadataPolicy
	Policy       classify.Policy
	LedgerTable  string
	Logger       *slog.Logger
}

// Outcome describes what an execution did.
type Outcome struct {
	Success          bool              `json:"success"`
	Strategy         classify.Strategy `json:"strategy"`
	AppliedRevisions []string          `json:"applied_revisions"`
	Diagnostic       string            `json:"diagnostic,omitempty"`
	Duration         time.Duration     `json:"duration"`
}

// Execute dispatches to the executor for the selected strategy.
func Execute(ctx context.Context, deps Deps, strategy classify.Strategy) (*Outcome, error) {
	start := time.Now()

	var (
		outcome *Outcome
		err     error
	)
	switch strategy {
	case classify.StrategyFreshInit:
		outcome, err = FreshInit(ctx, deps)
	case classify.StrategyCheckAndApplyPending:
		outcome, err = CheckAndApplyPending(ctx, deps)
	case classify.StrategyComprehensiveBaseline:
		outcome, err = ComprehensiveBaseline(ctx, deps)
	default:
		return nil, fmt.Errorf("unknown strategy: %s", strategy)
	}

	if outcome == nil {
		outcome = &Outcome{Strategy: strategy}
	}
	outcome.Strategy = strategy
	outcome.Duration = time.Since(start)
	return outcome, err
}

// recordedRevisions is a best-effort read of the revisions the database
// ended up stamped at, for the outcome report.
func recordedRevisions(ctx context.Context, deps Deps) []string {
	inv, err := deps.Inventory.Read(ctx)
	if err != nil {
		deps.Logger.Warn("could not read final ledger revisions", "error", err)
		return nil
	}
	return inv.LedgerRevisions
}
