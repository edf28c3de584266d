package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/persistent-state-go/statepersist"
	"github.com/AntonStoeckl/persistent-state-go/statepersist/postgresengine/internal/adapters"
)

const (
	// DefaultTableName is the table the engine stores its items in unless WithTableName is used.
	DefaultTableName = "statepersist_items"

	dialectPostgres = "postgres"
	colKey          = "key"
	colValue        = "value"
	colUpdatedAt    = "updated_at"
	excludedValue   = "excluded.value"
)

var (
	// ErrNilDatabaseConnection is returned when a constructor receives a nil connection.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyTableName is returned by WithTableName for an empty name.
	ErrEmptyTableName = errors.New("table name must not be empty")

	// ErrBuildingQueryFailed is returned when a SQL statement could not be built.
	ErrBuildingQueryFailed = errors.New("building sql query failed")

	// ErrQueryingFailed is returned when a query or statement failed in the database.
	ErrQueryingFailed = errors.New("database query failed")

	// ErrScanningDBRowFailed is returned when a result row could not be scanned.
	ErrScanningDBRowFailed = errors.New("scanning database row failed")
)

// Engine is a statepersist.StorageEngine backed by a PostgreSQL table with one row per storage address.
//
// Values are stored as text, so the engine holds what the JSON serializer produces: strings or []byte.
// GetItem always returns strings.
type Engine struct {
	db        adapters.DBAdapter
	tableName string

	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
}

// NewEngineFromPGXPool creates a new Engine using a pgx Pool with optional configuration.
func NewEngineFromPGXPool(db *pgxpool.Pool, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewPGXAdapter(db), options...)
}

// NewEngineFromSQLDB creates a new Engine using a sql.DB with optional configuration.
func NewEngineFromSQLDB(db *sql.DB, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewSQLAdapter(db), options...)
}

// NewEngineFromSQLX creates a new Engine using a sqlx.DB with optional configuration.
func NewEngineFromSQLX(db *sqlx.DB, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewSQLXAdapter(db), options...)
}

func newEngine(db adapters.DBAdapter, options ...Option) (*Engine, error) {
	e := &Engine{
		db:        db,
		tableName: DefaultTableName,
	}

	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// TableName returns the name of the table the engine reads and writes.
func (e *Engine) TableName() string {
	return e.tableName
}

// CreateTable creates the items table if it does not exist yet.
func (e *Engine) CreateTable(ctx context.Context) error {
	ddl := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (%s text PRIMARY KEY, %s text NOT NULL, %s timestamptz NOT NULL DEFAULT now())`,
		e.quotedTableName(),
		colKey,
		colValue,
		colUpdatedAt,
	)

	_, err := e.exec(ctx, operationCreateTable, ddl)

	return err
}

// GetItem implements statepersist.StorageEngine.
func (e *Engine) GetItem(ctx context.Context, key string) (any, bool, error) {
	sqlQuery, _, err := goqu.Dialect(dialectPostgres).
		From(e.tableName).
		Select(colValue).
		Where(goqu.C(colKey).Eq(key)).
		ToSQL()
	if err != nil {
		return nil, false, e.buildFailed(ctx, operationGet, err)
	}

	var values []string

	if err = e.query(ctx, operationGet, sqlQuery, func(rows adapters.DBRows) error {
		var value string
		if scanErr := rows.Scan(&value); scanErr != nil {
			return scanErr
		}

		values = append(values, value)

		return nil
	}); err != nil {
		return nil, false, err
	}

	if len(values) == 0 {
		return nil, false, nil
	}

	return values[0], true, nil
}

// SetItem implements statepersist.StorageEngine with an upsert on the key.
func (e *Engine) SetItem(ctx context.Context, key string, value any) error {
	text, err := toText(value)
	if err != nil {
		return err
	}

	sqlQuery, _, err := goqu.Dialect(dialectPostgres).
		Insert(e.tableName).
		Rows(goqu.Record{colKey: key, colValue: text}).
		OnConflict(goqu.DoUpdate(colKey, goqu.Record{
			colValue:     goqu.I(excludedValue),
			colUpdatedAt: goqu.L("now()"),
		})).
		ToSQL()
	if err != nil {
		return e.buildFailed(ctx, operationSet, err)
	}

	_, err = e.exec(ctx, operationSet, sqlQuery)

	return err
}

// RemoveItem implements statepersist.StorageEngine. Removing a missing key is not an error.
func (e *Engine) RemoveItem(ctx context.Context, key string) error {
	sqlQuery, _, err := goqu.Dialect(dialectPostgres).
		Delete(e.tableName).
		Where(goqu.C(colKey).Eq(key)).
		ToSQL()
	if err != nil {
		return e.buildFailed(ctx, operationRemove, err)
	}

	_, err = e.exec(ctx, operationRemove, sqlQuery)

	return err
}

// Clear implements statepersist.StorageEngine by deleting every row of the table.
func (e *Engine) Clear(ctx context.Context) error {
	sqlQuery, _, err := goqu.Dialect(dialectPostgres).
		Delete(e.tableName).
		ToSQL()
	if err != nil {
		return e.buildFailed(ctx, operationClear, err)
	}

	rowsAffected, err := e.exec(ctx, operationClear, sqlQuery)
	if err != nil {
		return err
	}

	e.logOperationContext(ctx, logMsgTableCleared, logAttrRowsAffected, rowsAffected)

	return nil
}

// Length implements statepersist.StorageEngine.
func (e *Engine) Length(ctx context.Context) (int, error) {
	sqlQuery, _, err := goqu.Dialect(dialectPostgres).
		From(e.tableName).
		Select(goqu.COUNT(goqu.Star())).
		ToSQL()
	if err != nil {
		return 0, e.buildFailed(ctx, operationLength, err)
	}

	var count int64

	if err = e.query(ctx, operationLength, sqlQuery, func(rows adapters.DBRows) error {
		return rows.Scan(&count)
	}); err != nil {
		return 0, err
	}

	return int(count), nil
}

// Keys returns all stored keys in ascending order.
func (e *Engine) Keys(ctx context.Context) ([]string, error) {
	sqlQuery, _, err := goqu.Dialect(dialectPostgres).
		From(e.tableName).
		Select(colKey).
		Order(goqu.C(colKey).Asc()).
		ToSQL()
	if err != nil {
		return nil, e.buildFailed(ctx, operationKeys, err)
	}

	keys := make([]string, 0)

	if err = e.query(ctx, operationKeys, sqlQuery, func(rows adapters.DBRows) error {
		var key string
		if scanErr := rows.Scan(&key); scanErr != nil {
			return scanErr
		}

		keys = append(keys, key)

		return nil
	}); err != nil {
		return nil, err
	}

	return keys, nil
}

// query runs sqlQuery and hands every row to scan.
func (e *Engine) query(ctx context.Context, operation, sqlQuery string, scan func(adapters.DBRows) error) error {
	start := time.Now()
	observer, ctx := e.startObserving(ctx, operation)

	rows, err := e.db.Query(ctx, sqlQuery)
	e.logQueryWithDuration(ctx, sqlQuery, operation, time.Since(start))

	if err != nil {
		observer.finishError(errorTypeQuery, time.Since(start))
		e.logErrorContext(ctx, logMsgDBQueryFailed, err, logAttrQuery, sqlQuery)

		return errors.Join(ErrQueryingFailed, err)
	}
	defer e.closeRows(ctx, rows)

	for rows.Next() {
		if scanErr := scan(rows); scanErr != nil {
			observer.finishError(errorTypeScan, time.Since(start))
			e.logErrorContext(ctx, logMsgScanRowFailed, scanErr)

			return errors.Join(ErrScanningDBRowFailed, scanErr)
		}
	}

	if err = rows.Err(); err != nil {
		observer.finishError(errorTypeQuery, time.Since(start))
		e.logErrorContext(ctx, logMsgDBQueryFailed, err, logAttrQuery, sqlQuery)

		return errors.Join(ErrQueryingFailed, err)
	}

	observer.finishSuccess(time.Since(start))

	return nil
}

// exec runs a statement and returns the number of affected rows.
func (e *Engine) exec(ctx context.Context, operation, sqlQuery string) (int64, error) {
	start := time.Now()
	observer, ctx := e.startObserving(ctx, operation)

	result, err := e.db.Exec(ctx, sqlQuery)
	e.logQueryWithDuration(ctx, sqlQuery, operation, time.Since(start))

	if err != nil {
		observer.finishError(errorTypeExec, time.Since(start))
		e.logErrorContext(ctx, logMsgDBExecFailed, err, logAttrQuery, sqlQuery)

		return 0, errors.Join(ErrQueryingFailed, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		// The statement ran, only the count is unknown.
		e.logWarnContext(ctx, logMsgRowsAffectedFailed, logAttrError, err.Error())
		rowsAffected = 0
	}

	observer.finishSuccess(time.Since(start))

	return rowsAffected, nil
}

func (e *Engine) closeRows(ctx context.Context, rows adapters.DBRows) {
	if err := rows.Close(); err != nil {
		e.logWarnContext(ctx, logMsgCloseRowsFailed, logAttrError, err.Error())
	}
}

func (e *Engine) buildFailed(ctx context.Context, operation string, err error) error {
	e.logErrorContext(ctx, logMsgBuildQueryFailed, err, logAttrOperation, operation)
	e.recordErrorMetricsContext(ctx, operation, errorTypeBuildQuery)

	return errors.Join(ErrBuildingQueryFailed, err)
}

// quotedTableName quotes a possibly schema qualified table name for DDL.
func (e *Engine) quotedTableName() string {
	return pgx.Identifier(strings.Split(e.tableName, ".")).Sanitize()
}

func toText(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("%w: got %T", statepersist.ErrUnsupportedValue, value)
	}
}
