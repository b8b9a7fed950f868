// Package dbconn maps connection strings to engine families, database/sql
// driver names, and introspectors.
package dbconn

import (
	"database/sql"
	"fmt"

	"github.com/lockplane/initplane/database"
	"github.com/lockplane/initplane/database/postgres"
	"github.com/lockplane/initplane/database/sqlite"
)

// Open opens a database handle for the given connection string, detecting
// the engine family from the string itself. The connection is not validated
// here; sql.Open defers dialing until first use.
func Open(connStr string) (*sql.DB, database.Engine, error) {
	engine := database.DetectEngine(connStr)
	driverName := database.SQLDriverName(engine, connStr)

	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, engine, fmt.Errorf("failed to open %s connection: %w", engine, err)
	}
	return db, engine, nil
}

// NewIntrospector creates an introspector for the given engine family.
func NewIntrospector(engine database.Engine) (database.Introspector, error) {
	switch engine {
	case database.EnginePostgres:
		return postgres.NewIntrospector(), nil
	case database.EngineSQLite:
		return sqlite.NewIntrospector(), nil
	default:
		return nil, fmt.Errorf("unsupported database engine: %s", engine)
	}
}
