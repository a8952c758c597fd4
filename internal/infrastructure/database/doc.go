// Package database provides the SQLite store behind faculty presence.
//
// It opens the database with WAL mode and a busy timeout, pins the pool to a
// single connection, and applies versioned migrations from MigrationsFS.
//
// Usage:
//
//	db, err := database.Open(database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive. New columns must be nullable or carry a default,
// and every .up.sql ships with a matching .down.sql.
//
// All queries use placeholders. The file is chmod 0600 after open.
package database
