package db

import "errors"

// Sentinel errors for type-safe error checking
// Use errors.Is() instead of string comparison
var (
	// ErrDirtyMigration means a previous migration failed halfway and needs a manual force.
	ErrDirtyMigration = errors.New("database schema is dirty")
)
