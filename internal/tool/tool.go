// Package tool adapts the external migration tool behind a narrow
// interface. The orchestrator treats the tool as opaque: exit code 0 is
// success, anything else is failure, and stdout+stderr are captured
// verbatim because the log is the only postmortem artifact of an unattended
// run.
package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrToolFailed means the migration tool exited non-zero. The captured
// output travels with the wrapping error.
var ErrToolFailed = errors.New("migration tool failed")

// Result captures one tool invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Output returns the combined diagnostic output of the invocation.
func (r Result) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Runner is the set of migration tool operations the orchestrator needs.
// Revision ids are opaque strings; no naming scheme is assumed.
type Runner interface {
	// Init initializes the tool's metadata directory.
	Init(ctx context.Context) (Result, error)

	// Author creates a new migration step with the given description.
	Author(ctx context.Context, message string) (Result, error)

	// Heads lists the terminal revisions of the migration history.
	Heads(ctx context.Context) ([]string, Result, error)

	// Current lists the revision(s) the database is currently stamped at.
	Current(ctx context.Context) ([]string, Result, error)

	// UpgradeToHeads applies pending steps up to every terminal revision.
	UpgradeToHeads(ctx context.Context) (Result, error)

	// Stamp records the given revision in the ledger without applying steps.
	Stamp(ctx context.Context, revision string) (Result, error)
}

// CLI invokes the migration tool as a subprocess.
type CLI struct {
	Binary      string
	ExtraArgs   []string
	WorkDir     string
	MetadataDir string
	DatabaseURL string
	Logger      *slog.Logger
}

// Init runs the tool's initialize-metadata command.
func (c *CLI) Init(ctx context.Context) (Result, error) {
	return c.run(ctx, "init", c.MetadataDir)
}

// Author runs the tool's author-step command.
func (c *CLI) Author(ctx context.Context, message string) (Result, error) {
	return c.run(ctx, "revision", "-m", message)
}

// Heads runs the tool's list-heads command and parses one revision per line.
func (c *CLI) Heads(ctx context.Context) ([]string, Result, error) {
	res, err := c.run(ctx, "heads")
	if err != nil {
		return nil, res, err
	}
	return parseRevisionLines(res.Stdout), res, nil
}

// Current runs the tool's current-revision command. A database stamped on a
// branched history can report more than one revision.
func (c *CLI) Current(ctx context.Context) ([]string, Result, error) {
	res, err := c.run(ctx, "current")
	if err != nil {
		return nil, res, err
	}
	return parseRevisionLines(res.Stdout), res, nil
}

// UpgradeToHeads applies all pending steps up to the set of terminal
// revisions, not a single named target; a linear single-head assumption
// breaks under branched histories.
func (c *CLI) UpgradeToHeads(ctx context.Context) (Result, error) {
	return c.run(ctx, "upgrade", "heads")
}

// Stamp records a revision in the ledger without executing any steps.
func (c *CLI) Stamp(ctx context.Context, revision string) (Result, error) {
	return c.run(ctx, "stamp", revision)
}

func (c *CLI) run(ctx context.Context, verb string, args ...string) (Result, error) {
	cmdArgs := append(append([]string{}, c.ExtraArgs...), verb)
	cmdArgs = append(cmdArgs, args...)

	cmd := exec.CommandContext(ctx, c.Binary, cmdArgs...)
	cmd.Dir = c.WorkDir
	cmd.Env = append(os.Environ(), "DATABASE_URL="+c.DatabaseURL)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.Logger.Info("invoking migration tool", "binary", c.Binary, "verb", verb, "args", args)

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			c.Logger.Warn("migration tool exited non-zero",
				"verb", verb,
				"exit_code", res.ExitCode,
				"duration", res.Duration,
				"output", res.Output())
			return res, fmt.Errorf("%w: %s %s exited %d", ErrToolFailed, c.Binary, verb, res.ExitCode)
		}
		// The binary could not be started at all
		res.ExitCode = -1
		return res, fmt.Errorf("failed to invoke %s %s: %w", c.Binary, verb, err)
	}

	c.Logger.Info("migration tool succeeded", "verb", verb, "duration", res.Duration)
	return res, nil
}

// parseRevisionLines extracts one revision id per non-empty output line.
// Annotations after the id (for example "(head)") are dropped.
func parseRevisionLines(output string) []string {
	var revisions []string
	seen := make(map[string]struct{})
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		rev := fields[0]
		if _, ok := seen[rev]; ok {
			continue
		}
		seen[rev] = struct{}{}
		revisions = append(revisions, rev)
	}
	return revisions
}

// Ensure CLI implements Runner
var _ Runner = (*CLI)(nil)
