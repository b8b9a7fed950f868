// Package inventory builds point-in-time snapshots of the target database's
// schema state. Snapshots are always rebuilt from a live read; nothing is
// cached between reads, which is what keeps repeated orchestrator runs
// honest about the state they are looking at.
package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"

	"github.com/lockplane/initplane/database"
)

// SchemaInventory is a value snapshot of the migration-relevant schema state.
type SchemaInventory struct {
	// HasLedger reports whether the migration ledger table exists.
	HasLedger bool `json:"has_ledger"`
	// LedgerRevisions holds every revision id stored in the ledger. A
	// branched migration history can legitimately store more than one row,
	// so this is a set, not a scalar.
	LedgerRevisions []string `json:"ledger_revisions"`
	// ApplicationTables is every table except the ledger itself.
	ApplicationTables map[string]struct{} `json:"-"`
	// AllTables is every table in the primary namespace, ledger included.
	AllTables []string `json:"all_tables"`
}

// CoreTablesPresent counts how many of the given core tables exist in the
// snapshot.
func (inv *SchemaInventory) CoreTablesPresent(coreTables []string) int {
	count := 0
	for _, name := range coreTables {
		if _, ok := inv.ApplicationTables[name]; ok {
			count++
		}
	}
	return count
}

// ApplicationTableNames returns the application tables as a sorted slice,
// for logging.
func (inv *SchemaInventory) ApplicationTableNames() []string {
	names := make([]string, 0, len(inv.ApplicationTables))
	for name := range inv.ApplicationTables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reader reads schema inventories from a live database connection.
type Reader struct {
	DB           *sql.DB
	Introspector database.Introspector
	LedgerTable  string
	LedgerColumn string
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Read builds a fresh inventory. Read never mutates the database.
func (r *Reader) Read(ctx context.Context) (*SchemaInventory, error) {
	tables, err := r.Introspector.GetTables(ctx, r.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	inv := &SchemaInventory{
		AllTables:         tables,
		ApplicationTables: make(map[string]struct{}, len(tables)),
	}

	for _, name := range tables {
		if name == r.LedgerTable {
			inv.HasLedger = true
			continue
		}
		inv.ApplicationTables[name] = struct{}{}
	}

	if inv.HasLedger {
		revisions, err := r.readLedgerRevisions(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger revisions: %w", err)
		}
		inv.LedgerRevisions = revisions
	}

	return inv, nil
}

// readLedgerRevisions returns every revision id stored in the ledger table.
// Multiple rows are surfaced as-is; interpreting a multi-head history is the
// executors' concern.
func (r *Reader) readLedgerRevisions(ctx context.Context) ([]string, error) {
	if !identifierPattern.MatchString(r.LedgerTable) {
		return nil, fmt.Errorf("invalid ledger table name: %q", r.LedgerTable)
	}
	if !identifierPattern.MatchString(r.LedgerColumn) {
		return nil, fmt.Errorf("invalid ledger column name: %q", r.LedgerColumn)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", r.LedgerColumn, r.LedgerTable)
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var revisions []string
	for rows.Next() {
		var revision sql.NullString
		if err := rows.Scan(&revision); err != nil {
			return nil, err
		}
		if revision.Valid && revision.String != "" {
			revisions = append(revisions, revision.String)
		}
	}

	return revisions, rows.Err()
}
