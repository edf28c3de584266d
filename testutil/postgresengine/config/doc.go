// Package config provides PostgreSQL connection configuration for the postgres storage engine tests.
//
// It creates connections for every supported adapter (pgx.Pool, sql.DB via lib/pq, sqlx.DB)
// against a test database whose DSN can be overridden with STATEPERSIST_POSTGRES_DSN.
package config
