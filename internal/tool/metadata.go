package tool

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MetadataState is the condition of the tool's metadata directory.
type MetadataState string

const (
	MetadataMissing   MetadataState = "missing"
	MetadataMalformed MetadataState = "malformed"
	MetadataOK        MetadataState = "ok"
)

// MetadataPolicy describes where the tool's metadata lives and which entries
// must exist for it to count as well-formed.
type MetadataPolicy struct {
	// Dir is the metadata directory, relative to the tool's working
	// directory or absolute.
	Dir string
	// Required is the set of entries (files or subdirectories) that must
	// exist directly inside Dir.
	Required []string
}

// StepsDir is the directory holding authored migration step files.
func (m MetadataPolicy) StepsDir() string {
	return filepath.Join(m.Dir, "versions")
}

// State inspects the metadata directory.
func (m MetadataPolicy) State() (MetadataState, error) {
	info, err := os.Stat(m.Dir)
	if os.IsNotExist(err) {
		return MetadataMissing, nil
	}
	if err != nil {
		return MetadataMissing, err
	}
	if !info.IsDir() {
		return MetadataMalformed, nil
	}

	for _, entry := range m.Required {
		if _, err := os.Stat(filepath.Join(m.Dir, entry)); err != nil {
			return MetadataMalformed, nil
		}
	}
	return MetadataOK, nil
}

// EnsureMetadata makes the metadata directory well-formed: a well-formed
// directory is left alone, a malformed one is deleted and recreated, a
// missing one is created. Each path is individually idempotent.
func EnsureMetadata(ctx context.Context, runner Runner, policy MetadataPolicy, logger *slog.Logger) error {
	state, err := policy.State()
	if err != nil {
		return fmt.Errorf("failed to inspect metadata directory %s: %w", policy.Dir, err)
	}

	switch state {
	case MetadataOK:
		logger.Info("tool metadata directory is well-formed, skipping initialization", "dir", policy.Dir)
		return nil
	case MetadataMalformed:
		logger.Warn("tool metadata directory is malformed, recreating", "dir", policy.Dir, "required", policy.Required)
		if err := os.RemoveAll(policy.Dir); err != nil {
			return fmt.Errorf("failed to remove malformed metadata directory %s: %w", policy.Dir, err)
		}
	case MetadataMissing:
		logger.Info("tool metadata directory is missing, initializing", "dir", policy.Dir)
	}

	res, err := runner.Init(ctx)
	if err != nil {
		return fmt.Errorf("metadata initialization failed: %w\ntool output:\n%s", err, res.Output())
	}
	return nil
}

// StepFiles lists the authored migration step files, sorted by name.
func (m MetadataPolicy) StepFiles() ([]string, error) {
	entries, err := os.ReadDir(m.StepsDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

// RevisionFromStepFile extracts the revision id from a step file name. Step
// files are named "<revision>_<description>.<ext>"; the id is everything
// before the first underscore.
func RevisionFromStepFile(name string) string {
	base := name
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if i := strings.IndexByte(base, '_'); i >= 0 {
		return base[:i]
	}
	return base
}
