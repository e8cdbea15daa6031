// Package database provides the SQLite connection behind the NetFleet event
// journal and the operation audit trail.
//
// It opens a connection with WAL and busy-timeout pragmas, applies the
// embedded schema migrations and reports health.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are embedded by the top-level migrations package, which
// registers its files in init(). Files are named
// YYYYMMDD_HHMMSS_description.up.sql with an optional .down.sql partner and
// are strictly additive: journal rows are never rewritten.
//
// A Path of ":memory:" opens a private in-memory database on a single
// connection, which tests use in place of a temp file.
package database
