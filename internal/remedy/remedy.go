// Package remedy repairs a stale migration ledger: a ledger recording a
// revision while none of the expected application tables exist, left behind
// by a run that crashed mid-migration.
package remedy

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DropStaleLedger drops the migration ledger table so the run can proceed as
// a fresh initialization. Dropping a missing table is a no-op, which keeps
// the remediation idempotent. This is the only place in the orchestrator
// that issues a destructive statement, and it only ever touches migration
// metadata, never application data.
func DropStaleLedger(ctx context.Context, db *sql.DB, ledgerTable string, logger *slog.Logger) error {
	if !identifierPattern.MatchString(ledgerTable) {
		return fmt.Errorf("invalid ledger table name: %q", ledgerTable)
	}

	// Loud on purpose: a stale ledger means a previous run was interrupted
	// mid-migration.
	logger.Error("stale migration ledger detected: dropping ledger table left behind by an interrupted run",
		"ledger_table", ledgerTable)

	if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", ledgerTable)); err != nil {
		return fmt.Errorf("failed to drop stale ledger table %s: %w", ledgerTable, err)
	}

	logger.Info("stale ledger removed", "ledger_table", ledgerTable)
	return nil
}
