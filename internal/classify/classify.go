// Package classify maps a schema inventory snapshot to a database state and
// a remediation strategy. Everything in this package is a pure function; all
// I/O happens before (inventory read) or after (strategy execution).
package classify

import "github.com/lockplane/initplane/internal/inventory"

// State is the classified condition of the target database.
type State string

const (
	// StateFresh means the database has none of the application's tables.
	StateFresh State = "fresh"
	// StateMigrated means the ledger exists and enough core tables are
	// present to trust it.
	StateMigrated State = "migrated"
	// StateLegacy means the database has structure that predates or
	// diverges from the migration bookkeeping.
	StateLegacy State = "legacy"
	// StateUnknown means introspection itself failed.
	StateUnknown State = "unknown"
)

// Strategy is the remediation path chosen for a classified state.
type Strategy string

const (
	StrategyFreshInit             Strategy = "fresh-init"
	StrategyCheckAndApplyPending  Strategy = "check-and-apply-pending"
	StrategyComprehensiveBaseline Strategy = "comprehensive-baseline"
)

// Policy holds the classification thresholds. Both values are configuration
// inputs, not laws.
type Policy struct {
	// CoreTables is the canonical core table set.
	CoreTables []string
	// MigratedThreshold is how many core tables must be present, alongside
	// the ledger, to classify as migrated.
	MigratedThreshold int
}

// Classification is the classifier's full verdict.
type Classification struct {
	State State
	// StaleLedger is set when a ledger exists but zero core tables do: a
	// previous run stamped a revision and crashed before creating any
	// table. The ledger is lying and must not be treated as ground truth.
	StaleLedger bool
	// CorePresent is how many of the canonical core tables exist.
	CorePresent int
}

// Classify maps an inventory snapshot to a state. A nil inventory means
// introspection failed and classifies as unknown.
func Classify(inv *inventory.SchemaInventory, policy Policy) Classification {
	if inv == nil {
		return Classification{State: StateUnknown}
	}

	corePresent := inv.CoreTablesPresent(policy.CoreTables)

	if !inv.HasLedger {
		if len(inv.AllTables) == 0 {
			return Classification{State: StateFresh}
		}
		return Classification{State: StateLegacy, CorePresent: corePresent}
	}

	switch {
	case corePresent == 0:
		// Ledger with no core tables at all: stale ledger, collapse to
		// fresh regardless of what other tables exist.
		return Classification{State: StateFresh, StaleLedger: true}
	case corePresent >= policy.MigratedThreshold:
		return Classification{State: StateMigrated, CorePresent: corePresent}
	default:
		return Classification{State: StateLegacy, CorePresent: corePresent}
	}
}

// SelectStrategy maps a classified state to its remediation strategy.
// Unknown routes to the most conservative, most thorough path rather than
// silently skipping work.
func SelectStrategy(state State) Strategy {
	switch state {
	case StateFresh:
		return StrategyFreshInit
	case StateMigrated:
		return StrategyCheckAndApplyPending
	case StateLegacy:
		return StrategyComprehensiveBaseline
	default:
		return StrategyComprehensiveBaseline
	}
}
