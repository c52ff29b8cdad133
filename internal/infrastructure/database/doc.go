// Package database opens the SQLite file that backs parse history.
//
// Open accepts a file path or MemoryPath. File databases are created with
// owner-only permissions and, when Config.WALMode is set, run in WAL
// journal mode so the API and the MQTT bridge can read history while a
// decode is being recorded.
//
// Schema changes live in the migrations package as paired
// YYYYMMDD_HHMMSS_name.up.sql / .down.sql files. Importing that package
// calls RegisterMigrations; Migrate then applies whatever the
// schema_migrations table has not seen yet, one transaction per file.
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	err = db.Migrate(ctx)
package database
