// Package database provides SQLite connectivity for the family-tree core.
//
// This package manages:
//   - Connection setup with WAL mode and enforced foreign keys
//   - Versioned schema migrations read from an fs.FS (see package migrations)
//   - A WithTx helper so repositories can group statements atomically
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is chmod 0600
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
