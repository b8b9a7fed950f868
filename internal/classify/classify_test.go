package classify

import (
	"testing"

	"github.com/lockplane/initplane/internal/inventory"
)

var testPolicy = Policy{
	CoreTables:        []string{"users", "clients", "projects", "time_entries", "invoices"},
	MigratedThreshold: 3,
}

func makeInventory(hasLedger bool, revisions []string, tables ...string) *inventory.SchemaInventory {
	inv := &inventory.SchemaInventory{
		HasLedger:         hasLedger,
		LedgerRevisions:   revisions,
		ApplicationTables: make(map[string]struct{}),
	}
	for _, name := range tables {
		inv.AllTables = append(inv.AllTables, name)
		inv.ApplicationTables[name] = struct{}{}
	}
	if hasLedger {
		inv.AllTables = append(inv.AllTables, "schema_migrations")
	}
	return inv
}

func TestClassify_DecisionTable(t *testing.T) {
	tests := []struct {
		name        string
		inv         *inventory.SchemaInventory
		wantState   State
		wantStale   bool
	}{
		{
			name:      "no ledger and no tables is fresh",
			inv:       makeInventory(false, nil),
			wantState: StateFresh,
		},
		{
			name:      "no ledger with unrelated tables is legacy",
			inv:       makeInventory(false, nil, "old_reports", "old_customers"),
			wantState: StateLegacy,
		},
		{
			name:      "ledger with zero core tables is fresh with stale ledger",
			inv:       makeInventory(true, []string{"r1"}),
			wantState: StateFresh,
			wantStale: true,
		},
		{
			name:      "ledger with zero core tables but other tables still collapses to fresh",
			inv:       makeInventory(true, []string{"r1"}, "old_reports", "audit_log"),
			wantState: StateFresh,
			wantStale: true,
		},
		{
			name:      "ledger at threshold is migrated",
			inv:       makeInventory(true, []string{"r2"}, "users", "clients", "projects"),
			wantState: StateMigrated,
		},
		{
			name:      "ledger above threshold is migrated",
			inv:       makeInventory(true, []string{"r2"}, "users", "clients", "projects", "time_entries", "invoices"),
			wantState: StateMigrated,
		},
		{
			name:      "ledger below threshold is legacy",
			inv:       makeInventory(true, []string{"r2"}, "users", "clients"),
			wantState: StateLegacy,
		},
		{
			name:      "nil inventory means introspection failed and is unknown",
			inv:       nil,
			wantState: StateUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.inv, testPolicy)
			if got.State != tt.wantState {
				t.Errorf("Classify() state = %v, want %v", got.State, tt.wantState)
			}
			if got.StaleLedger != tt.wantStale {
				t.Errorf("Classify() staleLedger = %v, want %v", got.StaleLedger, tt.wantStale)
			}
		})
	}
}

func TestClassify_ConfigurableThreshold(t *testing.T) {
	inv := makeInventory(true, []string{"r1"}, "users", "clients")

	strict := Policy{CoreTables: testPolicy.CoreTables, MigratedThreshold: 2}
	if got := Classify(inv, strict); got.State != StateMigrated {
		t.Errorf("with threshold 2, state = %v, want %v", got.State, StateMigrated)
	}

	if got := Classify(inv, testPolicy); got.State != StateLegacy {
		t.Errorf("with threshold 3, state = %v, want %v", got.State, StateLegacy)
	}
}

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		state State
		want  Strategy
	}{
		{StateFresh, StrategyFreshInit},
		{StateMigrated, StrategyCheckAndApplyPending},
		{StateLegacy, StrategyComprehensiveBaseline},
		{StateUnknown, StrategyComprehensiveBaseline},
	}

	for _, tt := range tests {
		if got := SelectStrategy(tt.state); got != tt.want {
			t.Errorf("SelectStrategy(%v) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestSelectStrategy_UnknownNeverFreshInit(t *testing.T) {
	// An introspection failure must route to the most conservative path,
	// never to an initializer that could write over existing data.
	if got := SelectStrategy(StateUnknown); got == StrategyFreshInit {
		t.Fatal("unknown state selected fresh-init")
	}
}
