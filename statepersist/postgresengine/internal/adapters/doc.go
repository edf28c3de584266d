// Package adapters provides the database adapters of the PostgreSQL storage engine.
//
// pgxpool.Pool, sql.DB and sqlx.DB are wrapped behind one DBAdapter interface,
// so the engine builds its SQL once and runs it on whichever connection type the caller owns.
package adapters
