package postgresengine

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/AntonStoeckl/persistent-state-go/statepersist/postgresengine/internal/adapters"
)

var errFakeDatabase = errors.New("fake database failure")

// fakeAdapter is an in-memory stand-in for a database connection. It records every statement and
// answers queries from canned rows.
type fakeAdapter struct {
	mu         sync.Mutex
	statements []string
	rows       [][]any
	failQuery  bool
	failExec   bool
	affected   int64
}

func (f *fakeAdapter) Query(_ context.Context, query string) (adapters.DBRows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statements = append(f.statements, query)
	if f.failQuery {
		return nil, errFakeDatabase
	}

	return &fakeRows{rows: f.rows, index: -1}, nil
}

func (f *fakeAdapter) Exec(_ context.Context, query string) (adapters.DBResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statements = append(f.statements, query)
	if f.failExec {
		return nil, errFakeDatabase
	}

	return fakeResult(f.affected), nil
}

func (f *fakeAdapter) lastStatement() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.statements) == 0 {
		return ""
	}

	return f.statements[len(f.statements)-1]
}

type fakeRows struct {
	rows  [][]any
	index int
}

func (r *fakeRows) Next() bool {
	r.index++
	return r.index < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.index]
	if len(row) != len(dest) {
		return errors.New("column count mismatch")
	}

	for i, value := range row {
		switch d := dest[i].(type) {
		case *string:
			s, ok := value.(string)
			if !ok {
				return errors.New("cannot scan into string")
			}
			*d = s
		case *int64:
			n, ok := value.(int64)
			if !ok {
				return errors.New("cannot scan into int64")
			}
			*d = n
		default:
			return errors.New("unsupported scan destination")
		}
	}

	return nil
}

func (r *fakeRows) Err() error {
	return nil
}

func (r *fakeRows) Close() error {
	return nil
}

type fakeResult int64

func (r fakeResult) RowsAffected() (int64, error) {
	return int64(r), nil
}

func containsAll(statement string, parts ...string) bool {
	for _, part := range parts {
		if !strings.Contains(statement, part) {
			return false
		}
	}

	return true
}
