// Package pgtest creates postgres storage engines for integration tests.
//
// The adapter is selected with ADAPTER_TYPE ("pgx.pool", the default, "sql.db" or "sqlx.db").
// Every engine gets its own table, which is dropped when the test ends. Tests are skipped
// when the test database is not reachable.
package pgtest
