// Package database provides the SQLite connection of the CTI proxy.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Additive schema migrations read from an fs.FS
//   - Transactions through InTx
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is restricted to 0600
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named NNNN_description.up.sql with an optional
// NNNN_description.down.sql. New columns must be nullable or carry a
// default so older binaries keep working.
package database
