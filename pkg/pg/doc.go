// Package pg opens pgx connection pools and applies goose migrations for the
// Postgres payment ledger backend.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	err = pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, log)
//
// Error helpers (IsNotFoundError, IsDuplicateKeyError) classify pgx errors
// without leaking driver types into callers.
package pg
