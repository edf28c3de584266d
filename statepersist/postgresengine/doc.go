// Package postgresengine provides a PostgreSQL implementation of statepersist.StorageEngine.
//
// Each storage address is one row of a key/value table; writes are upserts, so a persist cycle
// that rewrites a slice never needs to read first.
//
// Key features:
//   - Multiple database adapter support (pgx, sql.DB with lib/pq, sqlx)
//   - SQL built with goqu's postgres dialect
//   - Configurable, optionally schema qualified table names
//   - Logging, metrics and tracing through the statepersist observability interfaces
//
// Usage example:
//
//	pool, _ := pgxpool.New(ctx, dsn)
//	engine, _ := postgresengine.NewEngineFromPGXPool(pool, postgresengine.WithTableName("app_state"))
//	_ = engine.CreateTable(ctx)
//
//	plugin, _ := statepersist.NewPlugin(registry, statepersist.WithEngine(engine))
package postgresengine
