package database

import "errors"

var (
	// ErrNoPath is returned by Open when no database path is configured.
	ErrNoPath = errors.New("database: path is empty")

	// ErrMissingDown is returned when rolling back a migration without a
	// down script.
	ErrMissingDown = errors.New("database: migration has no down script")

	// ErrUnknownMigration is returned when the latest applied migration is
	// absent from the migration source.
	ErrUnknownMigration = errors.New("database: applied migration not found")
)
