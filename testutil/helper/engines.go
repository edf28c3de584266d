package helper

import (
	"context"
	"errors"
	"sync"

	"github.com/AntonStoeckl/persistent-state-go/statepersist"
)

// ErrEngineFailure is returned by FailingEngine for every failing operation.
var ErrEngineFailure = errors.New("engine failure")

// RecordedCall is one call made to a RecordingEngine.
type RecordedCall struct {
	Op    string
	Key   string
	Value any
}

// RecordingEngine wraps a StorageEngine and records every call made to it.
type RecordingEngine struct {
	inner statepersist.StorageEngine
	calls []RecordedCall
	mu    sync.Mutex
}

// NewRecordingEngine wraps inner, a MemoryEngine when inner is nil.
func NewRecordingEngine(inner statepersist.StorageEngine) *RecordingEngine {
	if inner == nil {
		inner = statepersist.NewMemoryEngine()
	}

	return &RecordingEngine{inner: inner}
}

// GetItem implements statepersist.StorageEngine.
func (e *RecordingEngine) GetItem(ctx context.Context, key string) (any, bool, error) {
	e.record("get", key, nil)
	return e.inner.GetItem(ctx, key)
}

// SetItem implements statepersist.StorageEngine.
func (e *RecordingEngine) SetItem(ctx context.Context, key string, value any) error {
	e.record("set", key, value)
	return e.inner.SetItem(ctx, key, value)
}

// RemoveItem implements statepersist.StorageEngine.
func (e *RecordingEngine) RemoveItem(ctx context.Context, key string) error {
	e.record("remove", key, nil)
	return e.inner.RemoveItem(ctx, key)
}

// Clear implements statepersist.StorageEngine.
func (e *RecordingEngine) Clear(ctx context.Context) error {
	e.record("clear", "", nil)
	return e.inner.Clear(ctx)
}

// Length implements statepersist.StorageEngine.
func (e *RecordingEngine) Length(ctx context.Context) (int, error) {
	return e.inner.Length(ctx)
}

func (e *RecordingEngine) record(op, key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, RecordedCall{Op: op, Key: key, Value: value})
}

// Calls returns a copy of all recorded calls.
func (e *RecordingEngine) Calls() []RecordedCall {
	e.mu.Lock()
	defer e.mu.Unlock()

	calls := make([]RecordedCall, len(e.calls))
	copy(calls, e.calls)

	return calls
}

// CallsOf returns the recorded calls of one operation ("get", "set", "remove", "clear").
func (e *RecordingEngine) CallsOf(op string) []RecordedCall {
	var calls []RecordedCall

	for _, call := range e.Calls() {
		if call.Op == op {
			calls = append(calls, call)
		}
	}

	return calls
}

// Reset forgets all recorded calls.
func (e *RecordingEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = nil
}

// FailingEngine is a MemoryEngine whose operations can be switched to fail with ErrEngineFailure.
type FailingEngine struct {
	*statepersist.MemoryEngine
	FailGet    bool
	FailSet    bool
	FailRemove bool
}

// NewFailingEngine creates a FailingEngine that does not fail yet.
func NewFailingEngine() *FailingEngine {
	return &FailingEngine{MemoryEngine: statepersist.NewMemoryEngine()}
}

// GetItem implements statepersist.StorageEngine.
func (e *FailingEngine) GetItem(ctx context.Context, key string) (any, bool, error) {
	if e.FailGet {
		return nil, false, ErrEngineFailure
	}

	return e.MemoryEngine.GetItem(ctx, key)
}

// SetItem implements statepersist.StorageEngine.
func (e *FailingEngine) SetItem(ctx context.Context, key string, value any) error {
	if e.FailSet {
		return ErrEngineFailure
	}

	return e.MemoryEngine.SetItem(ctx, key, value)
}

// RemoveItem implements statepersist.StorageEngine.
func (e *FailingEngine) RemoveItem(ctx context.Context, key string) error {
	if e.FailRemove {
		return ErrEngineFailure
	}

	return e.MemoryEngine.RemoveItem(ctx, key)
}
