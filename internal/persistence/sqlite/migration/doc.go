// Package migration applies versioned SQL schema changes to SQLite databases.
//
// Migration files live in a directory of an fs.FS (usually an embed.FS) and
// follow the naming convention {version}_{description}.sql, for example
// "001_catalog.sql". Each migration runs in its own transaction together with
// the insert into the schema_migrations table that records it, so a failed
// migration leaves no trace. Applied files are checksummed; editing one after
// it ran is reported as ErrChecksumMismatch.
//
// Example usage:
//
//	manager := migration.NewMigrationManager(migration.NewFileScanner(), migration.NewSQLiteExecutor(db), files, "migrations", logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
