package database

import (
	"context"
	"database/sql"
)

// Schema represents a database schema
type Schema struct {
	Tables []Table `json:"tables"`
}

// Table represents a database table
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Column represents a table column
type Column struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Nullable     bool    `json:"nullable"`
	Default      *string `json:"default,omitempty"`
	IsPrimaryKey bool    `json:"is_primary_key"`
}

// Introspector defines the interface for read-only schema introspection.
// Implementations must never issue DDL or DML; the orchestrator depends on
// introspection being safe to repeat any number of times.
type Introspector interface {
	// IntrospectSchema reads the entire database schema at column level
	IntrospectSchema(ctx context.Context, db *sql.DB) (*Schema, error)

	// GetTables returns all table names in the primary schema/namespace
	GetTables(ctx context.Context, db *sql.DB) ([]string, error)

	// GetColumns returns all columns for a given table
	GetColumns(ctx context.Context, db *sql.DB, tableName string) ([]Column, error)

	// TableExists reports whether the named table exists
	TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error)
}
