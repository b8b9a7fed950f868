// Package probe blocks until the target database accepts connections or a
// retry budget is exhausted.
package probe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lockplane/initplane/database"
)

// ErrExhausted means the database never became reachable within the retry
// budget. Fatal for the run.
var ErrExhausted = errors.New("connectivity retry budget exhausted")

// errSkipMethod marks a probing method that does not apply to this target
// (for example a writable-path check against an in-memory database). Skips
// do not consume retry budget.
var errSkipMethod = errors.New("probing method not applicable")

// Prober attempts to reach the target database, retrying with a fixed delay.
type Prober struct {
	DB          *sql.DB
	Engine      database.Engine
	ConnStr     string
	MaxAttempts int
	Delay       time.Duration
	Logger      *slog.Logger

	// Sleep is replaceable in tests. Nil means time.Sleep via the context.
	Sleep func(ctx context.Context, d time.Duration)
}

type probeMethod struct {
	name string
	fn   func(ctx context.Context) error
}

// Probe attempts the probing methods once per attempt, sleeping Delay
// between attempts, and returns ErrExhausted after MaxAttempts. The only
// side effect is the attempted connection itself.
func (p *Prober) Probe(ctx context.Context) error {
	methods := p.methods()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := p.attempt(ctx, methods)
		if err == nil {
			p.Logger.Info("database is ready", "attempt", attempt, "engine", string(p.Engine))
			return nil
		}
		lastErr = err

		p.Logger.Warn("database not ready",
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"error", err)

		if attempt < p.MaxAttempts {
			p.sleep(ctx, p.Delay)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrExhausted, p.MaxAttempts, lastErr)
}

// attempt runs the probing methods in order. The first method that applies
// decides the attempt; inapplicable methods are skipped without consuming
// budget.
func (p *Prober) attempt(ctx context.Context, methods []probeMethod) error {
	skipped := 0
	for _, m := range methods {
		err := m.fn(ctx)
		if errors.Is(err, errSkipMethod) {
			p.Logger.Debug("skipping probing method", "method", m.name, "reason", err)
			skipped++
			continue
		}
		return err
	}
	if skipped == len(methods) {
		return fmt.Errorf("no probing method applicable to target")
	}
	return nil
}

func (p *Prober) methods() []probeMethod {
	if p.Engine == database.EngineSQLite {
		return []probeMethod{
			{name: "writable-path", fn: p.checkWritablePath},
			{name: "minimal-query", fn: p.minimalQuery},
		}
	}
	return []probeMethod{
		{name: "minimal-query", fn: p.minimalQuery},
	}
}

// minimalQuery pings the database and runs the smallest possible read. A
// missing driver registration is a skip, not a retriable failure.
func (p *Prober) minimalQuery(ctx context.Context) error {
	if err := p.DB.PingContext(ctx); err != nil {
		if strings.Contains(err.Error(), "unknown driver") {
			return fmt.Errorf("%w: %v", errSkipMethod, err)
		}
		return err
	}
	var one int
	if err := p.DB.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return err
	}
	return nil
}

// checkWritablePath verifies the directory holding a file-based database is
// writable. Only applies to plain file paths.
func (p *Prober) checkWritablePath(ctx context.Context) error {
	path := SQLiteFilePath(p.ConnStr)
	if path == "" {
		return errSkipMethod
	}

	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("database directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("database parent path %s is not a directory", dir)
	}

	probeFile, err := os.CreateTemp(dir, ".initplane-probe-*")
	if err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	name := probeFile.Name()
	_ = probeFile.Close()
	_ = os.Remove(name)
	return nil
}

// SQLiteFilePath extracts a filesystem path from a SQLite connection string,
// or returns empty when the target is not a local file.
func SQLiteFilePath(connStr string) string {
	s := strings.TrimSpace(connStr)
	lower := strings.ToLower(s)

	switch {
	case lower == ":memory:", strings.HasPrefix(lower, "libsql://"):
		return ""
	case strings.HasPrefix(lower, "sqlite://"):
		s = s[len("sqlite://"):]
	case strings.HasPrefix(lower, "file:"):
		s = s[len("file:"):]
		if i := strings.IndexByte(s, '?'); i >= 0 {
			s = s[:i]
		}
	}
	if s == "" || strings.HasPrefix(s, ":") {
		return ""
	}
	return s
}

func (p *Prober) sleep(ctx context.Context, d time.Duration) {
	if p.Sleep != nil {
		p.Sleep(ctx, d)
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
