// Package database provides SQLite connectivity for sensor2mqtt.
//
// The database holds the zone configuration the heating coordinator
// reads once at startup. Nothing writes runtime state here.
//
// This package manages:
//   - Connection setup with WAL mode, busy timeout and foreign keys
//   - Versioned schema migrations from an fs.FS (normally the embedded
//     migrations package)
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, database.Source{FS: migrations.FS, Dir: "."}); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql.
package database
