package pgtest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/persistent-state-go/statepersist/postgresengine"
	"github.com/AntonStoeckl/persistent-state-go/testutil/postgresengine/config"
)

const (
	envAdapterType = "ADAPTER_TYPE"

	AdapterPGXPool = "pgx.pool"
	AdapterSQLDB   = "sql.db"
	AdapterSQLX    = "sqlx.db"
)

// AdapterType returns the adapter selected through ADAPTER_TYPE.
func AdapterType() string {
	if adapterType := os.Getenv(envAdapterType); adapterType != "" {
		return adapterType
	}

	return AdapterPGXPool
}

// UniqueTableName returns a fresh table name for one test.
func UniqueTableName() string {
	return "statepersist_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// CreateEngine connects to the test database with the selected adapter and returns an engine on a
// fresh table. It panics for an unknown adapter type.
func CreateEngine(t testing.TB, options ...postgresengine.Option) *postgresengine.Engine {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tableName := UniqueTableName()
	options = append([]postgresengine.Option{postgresengine.WithTableName(tableName)}, options...)
	dropTable := fmt.Sprintf("DROP TABLE IF EXISTS %s", tableName)
	dsn := config.PostgresDSN()

	var engine *postgresengine.Engine
	var err error

	switch AdapterType() {
	case AdapterPGXPool:
		pool, connErr := config.PostgresPGXPool(ctx, dsn)
		skipUnreachable(t, connErr)
		engine, err = postgresengine.NewEngineFromPGXPool(pool, options...)
		t.Cleanup(func() {
			_, _ = pool.Exec(context.Background(), dropTable)
			pool.Close()
		})

	case AdapterSQLDB:
		db, connErr := config.PostgresSQLDB(ctx, dsn)
		skipUnreachable(t, connErr)
		engine, err = postgresengine.NewEngineFromSQLDB(db, options...)
		t.Cleanup(func() {
			_, _ = db.ExecContext(context.Background(), dropTable)
			_ = db.Close()
		})

	case AdapterSQLX:
		db, connErr := config.PostgresSQLX(ctx, dsn)
		skipUnreachable(t, connErr)
		engine, err = postgresengine.NewEngineFromSQLX(db, options...)
		t.Cleanup(func() {
			_, _ = db.ExecContext(context.Background(), dropTable)
			_ = db.Close()
		})

	default:
		panic("unsupported adapter type: " + AdapterType())
	}

	require.NoError(t, err, "error in arranging test data")
	require.NoError(t, engine.CreateTable(ctx), "error in arranging test data")

	return engine
}

func skipUnreachable(t testing.TB, err error) {
	t.Helper()

	if err != nil {
		t.Skipf("postgres test database not reachable: %v", err)
	}
}
