// Package database provides SQLite connectivity for the auto-volume service.
//
// This package manages:
//   - Opening the database with WAL mode and foreign keys enforced
//   - Forward and single-step rollback schema migrations
//   - Health checks used by the startup sequence and /health endpoint
//
// Registered devices, their zone configs and the operator audit log live
// here. Sound-level readings are never written to SQLite.
//
// Usage:
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
