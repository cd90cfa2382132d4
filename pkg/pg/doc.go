// Package pg bootstraps the PostgreSQL layer backing the ledger and event
// stores: a pgx/v5 connection pool with retrying connect, goose schema
// migrations, a healthcheck closure, and error helpers the stores use to
// classify constraint violations.
//
// Typical startup:
//
//	cfg := config.MustLoad[pg.Config]()
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//	if err := pg.Migrate(ctx, pool, cfg, slog.Default()); err != nil {
//	    return err
//	}
package pg
