// Package verify confirms, after an executor has run, that the expected
// core tables and a consistent ledger actually exist.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lockplane/initplane/internal/inventory"
)

// ErrNotVerified means the post-run integrity check failed after all
// attempts. Fatal for the run.
var ErrNotVerified = errors.New("schema integrity not verified")

// Verifier re-reads the inventory and requires the ledger plus a minimum
// number of core tables. It retries because tables can still be committing
// asynchronously right after the migration tool exits.
type Verifier struct {
	Inventory     *inventory.Reader
	CoreTables    []string
	MinCoreTables int
	MaxAttempts   int
	Delay         time.Duration
	Logger        *slog.Logger

	// Sleep is replaceable in tests. Nil means sleeping via the context.
	Sleep func(ctx context.Context, d time.Duration)
}

// Verify runs the integrity check with bounded retry.
func (v *Verifier) Verify(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= v.MaxAttempts; attempt++ {
		err := v.check(ctx)
		if err == nil {
			v.Logger.Info("schema integrity verified", "attempt", attempt)
			return nil
		}
		lastErr = err

		v.Logger.Warn("schema integrity check failed",
			"attempt", attempt,
			"max_attempts", v.MaxAttempts,
			"error", err)

		if attempt < v.MaxAttempts {
			v.sleep(ctx, v.Delay)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrNotVerified, v.MaxAttempts, lastErr)
}

func (v *Verifier) check(ctx context.Context) error {
	inv, err := v.Inventory.Read(ctx)
	if err != nil {
		return fmt.Errorf("inventory read failed: %w", err)
	}

	if !inv.HasLedger {
		return fmt.Errorf("migration ledger table is missing")
	}

	present := inv.CoreTablesPresent(v.CoreTables)
	if present < v.MinCoreTables {
		return fmt.Errorf("only %d of %d required core tables present (have: %v)",
			present, v.MinCoreTables, inv.ApplicationTableNames())
	}
	return nil
}

func (v *Verifier) sleep(ctx context.Context, d time.Duration) {
	if v.Sleep != nil {
		v.Sleep(ctx, d)
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
