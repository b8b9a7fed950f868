// Package sqlcheck validates authored migration step SQL with the real
// PostgreSQL grammar before the run trusts it. Validation is advisory: a
// parse failure is logged loudly but never blocks a run, because the
// migration tool itself is the authority on what it can execute.
package sqlcheck

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Issue represents a validation finding in an authored step file.
type Issue struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// ValidateStepFiles parses every .sql file among the given step files.
// Non-SQL step files (tools that author scripts in other languages) are
// skipped.
func ValidateStepFiles(stepsDir string, files []string) []Issue {
	var issues []Issue
	for _, name := range files {
		if !strings.HasSuffix(strings.ToLower(name), ".sql") {
			continue
		}
		path := filepath.Join(stepsDir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			issues = append(issues, Issue{File: name, Message: fmt.Sprintf("failed to read: %v", err)})
			continue
		}
		if issue := validateSQL(name, string(content)); issue != nil {
			issues = append(issues, *issue)
		}
	}
	return issues
}

// validateSQL parses the content with pg_query and reports the first syntax
// error, if any.
func validateSQL(name, content string) *Issue {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil
	}
	if _, err := pg_query.Parse(trimmed); err != nil {
		return &Issue{File: name, Message: err.Error()}
	}
	return nil
}
