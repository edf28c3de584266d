package postgresengine_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/persistent-state-go/statepersist"
	"github.com/AntonStoeckl/persistent-state-go/statepersist/postgresengine"
	"github.com/AntonStoeckl/persistent-state-go/store"
	"github.com/AntonStoeckl/persistent-state-go/testutil/postgresengine/pgtest"
)

func Test_FactoryFunctions_When_DatabaseConnectionIsNil_ReturnError(t *testing.T) {
	testCases := []struct {
		name        string
		factoryFunc func() (*postgresengine.Engine, error)
	}{
		{
			name: "pgx_pool",
			factoryFunc: func() (*postgresengine.Engine, error) {
				var pool *pgxpool.Pool
				return postgresengine.NewEngineFromPGXPool(pool)
			},
		},
		{
			name: "sql_db",
			factoryFunc: func() (*postgresengine.Engine, error) {
				var db *sql.DB
				return postgresengine.NewEngineFromSQLDB(db)
			},
		},
		{
			name: "sqlx_db",
			factoryFunc: func() (*postgresengine.Engine, error) {
				var db *sqlx.DB
				return postgresengine.NewEngineFromSQLX(db)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			engine, err := tc.factoryFunc()

			// assert
			assert.ErrorIs(t, err, postgresengine.ErrNilDatabaseConnection)
			assert.Nil(t, engine)
		})
	}
}

func Test_StorageEngineContract_AgainstPostgres(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := pgtest.CreateEngine(t)

	// act / assert
	_, found, err := engine.GetItem(ctx, "app:counter")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, engine.SetItem(ctx, "app:counter", `{"count":1}`))
	require.NoError(t, engine.SetItem(ctx, "app:counter", `{"count":2}`))
	require.NoError(t, engine.SetItem(ctx, "app:names", []byte(`["ada"]`)))

	value, found, err := engine.GetItem(ctx, "app:counter")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"count":2}`, value)

	length, err := engine.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, length)

	keys, err := engine.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"app:counter", "app:names"}, keys)

	require.NoError(t, engine.RemoveItem(ctx, "app:counter"))
	require.NoError(t, engine.RemoveItem(ctx, "app:counter"))
	_, found, err = engine.GetItem(ctx, "app:counter")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, engine.Clear(ctx))
	length, err = engine.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, length)
}

type increment struct{}

func (increment) Type() string { return "counter/increment" }

func counterSlice() store.Slice {
	return store.Slice{
		Name:     "counter",
		Defaults: map[string]any{"count": float64(0)},
		Handlers: map[string]store.Reducer{
			"counter/increment": func(state any, _ store.Action) (any, error) {
				counter := state.(map[string]any)
				return map[string]any{"count": counter["count"].(float64) + 1}, nil
			},
		},
	}
}

func Test_Plugin_When_BackedByPostgres_RestoresStateAcrossStores(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := pgtest.CreateEngine(t)

	givenStore := func() *store.Store {
		registry, err := statepersist.NewRegistry([]statepersist.StorageKey{"counter"})
		require.NoError(t, err, "error in arranging test data")

		plugin, err := statepersist.NewPlugin(registry,
			statepersist.WithEngine(engine),
			statepersist.WithNamespace("pg_test"),
		)
		require.NoError(t, err, "error in arranging test data")

		s, err := store.New(ctx, store.WithSlices(counterSlice()), store.WithPlugins(plugin))
		require.NoError(t, err, "error in arranging test data")

		return s
	}

	// arrange
	first := givenStore()
	require.NoError(t, first.Dispatch(ctx, increment{}))
	require.NoError(t, first.Dispatch(ctx, increment{}))

	// act
	second := givenStore()

	// assert
	counter, found := second.Select("counter")
	require.True(t, found)
	assert.Equal(t, map[string]any{"count": float64(2)}, counter)

	raw, found, err := engine.GetItem(ctx, "pg_test:counter")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"count":2}`, raw.(string))
}

func Test_WithTableName_When_Empty_ReturnsError(t *testing.T) {
	// act
	_, err := postgresengine.NewEngineFromSQLDB(&sql.DB{}, postgresengine.WithTableName("  "))

	// assert
	assert.ErrorIs(t, err, postgresengine.ErrEmptyTableName)
}
