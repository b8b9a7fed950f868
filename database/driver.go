package database

import "strings"

// Engine identifies the relational engine family of a connection target.
type Engine string

const (
	EnginePostgres Engine = "postgres"
	EngineSQLite   Engine = "sqlite"
)

// DetectEngine determines the engine family from a connection string.
// libsql URLs speak the SQLite dialect, so they map to the sqlite family.
func DetectEngine(connStr string) Engine {
	lower := strings.ToLower(strings.TrimSpace(connStr))

	switch {
	case strings.HasPrefix(lower, "postgres://"),
		strings.HasPrefix(lower, "postgresql://"):
		return EnginePostgres
	case strings.HasPrefix(lower, "libsql://"),
		strings.HasPrefix(lower, "sqlite://"),
		strings.HasPrefix(lower, "file:"),
		strings.HasSuffix(lower, ".db"),
		strings.HasSuffix(lower, ".sqlite"),
		strings.HasSuffix(lower, ".sqlite3"),
		lower == ":memory:":
		return EngineSQLite
	}

	// Postgres key=value DSNs ("host=... dbname=...") have no URL scheme
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return EnginePostgres
	}

	return EngineSQLite
}

// SQLDriverName returns the database/sql driver name registered for the engine.
func SQLDriverName(engine Engine, connStr string) string {
	switch engine {
	case EnginePostgres:
		return "postgres"
	case EngineSQLite:
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(connStr)), "libsql://") {
			return "libsql"
		}
		return "sqlite"
	default:
		return string(engine)
	}
}
