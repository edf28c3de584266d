package statepersist

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/copystructure"

	"github.com/AntonStoeckl/persistent-state-go/store"
)

// Plugin is the persistence plugin for a store.
//
// On InitState and UpdateState it hydrates the incoming state from the storage engine. After every
// other committed transition it writes the registered keys (or the whole tree under AllKeys) to the
// engine, skipping values that did not change since they were last read or written.
type Plugin struct {
	registry *Registry
	engine   StorageEngine

	storage    StorageOption
	storageDir string
	namespace  string
	defaultKey string

	migrations       []MigrationDescriptor
	serializer       Serializer
	beforeSerialize  BeforeSerializeFunc
	afterDeserialize AfterDeserializeFunc

	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector

	mu      sync.Mutex
	lastRaw map[string]any
}

// target is one storage address the plugin reads from or writes to.
type target struct {
	key     StorageKey
	address string
}

// NewPlugin creates the persistence plugin. Without WithEngine the engine selected by WithStorage is built,
// which defaults to the local file engine.
func NewPlugin(registry *Registry, options ...Option) (*Plugin, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}

	p := &Plugin{
		registry:   registry,
		storage:    StorageOptionLocal,
		defaultKey: DefaultStateKey,
		serializer: NewJSONSerializer(),
		lastRaw:    make(map[string]any),
	}

	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}

	if p.engine == nil {
		engine, err := NewStorageEngine(p.storage, p.storageDir)
		if err != nil {
			return nil, err
		}

		p.engine = engine
	}

	return p, nil
}

// Engine returns the storage engine the plugin writes to.
func (p *Plugin) Engine() StorageEngine {
	return p.engine
}

// Registry returns the keys registry the plugin resolves its key set from.
func (p *Plugin) Registry() *Registry {
	return p.registry
}

// Handle implements store.Plugin.
//
// Lifecycle actions hydrate before the reducers run and are only written back when a migration ran.
// The first persisted regular transition freezes the registry.
func (p *Plugin) Handle(
	ctx context.Context,
	state store.State,
	action store.Action,
	next store.NextFunc,
) (store.State, error) {

	lifecycle := store.IsLifecycle(action)
	migrated := false

	if lifecycle {
		hydrated, ran, err := p.hydrate(ctx, state, addedSlices(action))
		if err != nil {
			return nil, err
		}

		state, migrated = hydrated, ran
	}

	nextState, err := next(ctx, state, action)
	if err != nil {
		return nil, err
	}

	if lifecycle && !migrated {
		return nextState, nil
	}

	if err = p.Persist(ctx, nextState); err != nil {
		return nil, err
	}

	if !lifecycle {
		p.registry.Freeze()
	}

	return nextState, nil
}

// Hydrate merges everything persisted for the registered keys into state and returns the result.
// state itself is not modified.
func (p *Plugin) Hydrate(ctx context.Context, state store.State) (store.State, error) {
	hydrated, _, err := p.hydrate(ctx, state, nil)

	return hydrated, err
}

// Persist writes the registered keys of state to the storage engine.
// Values equal to the last value read or written for an address are not written again.
func (p *Plugin) Persist(ctx context.Context, state store.State) error {
	start := time.Now()
	targets := p.targets(nil)

	tracer, ctx := p.startTracing(ctx, spanNamePersist, operationPersist, len(targets))
	metrics := p.startMetrics(ctx, metricPersistDuration, operationPersist)

	writes, skipped := 0, 0

	for _, t := range targets {
		written, errorType, err := p.persistTarget(ctx, state, t, metrics)
		if err != nil {
			duration := time.Since(start)
			tracer.finishError(errorType, duration)
			metrics.recordError(duration)
			p.logErrorContext(ctx, logMsgOperationFailed, err, logAttrOperation, operationPersist, logAttrAddress, t.address)

			return err
		}

		if written {
			writes++
		} else {
			skipped++
		}
	}

	duration := time.Since(start)
	tracer.finishSuccess(writes, duration)
	metrics.recordSuccess(duration)

	if writes > 0 {
		p.logOperationContext(ctx, logMsgStatePersisted,
			logAttrWrites, writes, logAttrSkipped, skipped, logAttrDurationMS, toMilliseconds(duration))
	}

	return nil
}

// Purge removes every address this plugin owns from the storage engine and forgets the cached values.
// Addresses of other namespaces are left alone.
func (p *Plugin) Purge(ctx context.Context) error {
	var errs []error

	for _, t := range p.targets(nil) {
		if err := p.engine.RemoveItem(ctx, t.address); err != nil {
			errs = append(errs, fmt.Errorf("key %q: %w", t.address, err))
		}
	}

	p.mu.Lock()
	p.lastRaw = make(map[string]any)
	p.mu.Unlock()

	if len(errs) > 0 {
		err := errors.Join(append([]error{ErrRemovingStateFailed}, errs...)...)
		p.logErrorContext(ctx, logMsgOperationFailed, err, logAttrOperation, operationPurge, spanAttrErrorType, errorTypeRemove)

		return err
	}

	p.logOperationContext(ctx, logMsgStatePurged, logAttrOperation, operationPurge)

	return nil
}

func (p *Plugin) hydrate(ctx context.Context, state store.State, only map[string]struct{}) (store.State, bool, error) {
	start := time.Now()
	targets := p.targets(only)

	tracer, ctx := p.startTracing(ctx, spanNameHydrate, operationHydrate, len(targets))
	metrics := p.startMetrics(ctx, metricHydrateDuration, operationHydrate)

	next := make(store.State, len(state))
	for name, value := range state {
		next[name] = value
	}

	migratedAny := false
	loaded := 0

	for _, t := range targets {
		value, found, migrated, errorType, err := p.load(ctx, t)
		if err != nil {
			duration := time.Since(start)
			tracer.finishError(errorType, duration)
			metrics.recordError(duration)
			p.logErrorContext(ctx, logMsgOperationFailed, err,
				logAttrOperation, operationHydrate, logAttrAddress, t.address, spanAttrErrorType, errorType)

			return nil, false, err
		}

		if !found {
			continue
		}

		if migrated {
			migratedAny = true
			metrics.recordMigration(t.address)
		}

		next = p.merge(ctx, next, t, value, only)
		loaded++
	}

	duration := time.Since(start)
	tracer.finishSuccess(loaded, duration)
	metrics.recordSuccess(duration)

	if loaded > 0 {
		p.logOperationContext(ctx, logMsgStateHydrated,
			logAttrSlices, loaded, logAttrMigrated, migratedAny, logAttrDurationMS, toMilliseconds(duration))
	}

	return next, migratedAny, nil
}

// load reads, deserializes, migrates and post-processes one target.
// A value that cannot be deserialized is logged and reported as not found, as is a value that decodes to nil.
func (p *Plugin) load(ctx context.Context, t target) (any, bool, bool, string, error) {
	raw, found, err := p.engine.GetItem(ctx, t.address)
	if err != nil {
		return nil, false, false, errorTypeRead, errors.Join(ErrReadingStateFailed, fmt.Errorf("key %q: %w", t.address, err))
	}

	if !found || isAbsent(raw) {
		return nil, false, false, "", nil
	}

	value, err := p.serializer.Deserialize(raw)
	if err != nil {
		p.logDeserializeFailure(ctx, t.address, err)
		return nil, false, false, "", nil
	}

	p.remember(t.address, raw)

	// A stored JSON null is treated like a missing value.
	if value == nil {
		return nil, false, false, "", nil
	}

	value, migrated, err := applyMigrations(p.migrations, value, t.key)
	if err != nil {
		return nil, false, false, errorTypeMigration, err
	}

	if p.afterDeserialize != nil {
		if value, err = p.afterDeserialize(value, t.key); err != nil {
			return nil, false, false, errorTypeHook, errors.Join(ErrHookFailed, fmt.Errorf("after deserialize %q: %w", t.address, err))
		}
	}

	return value, true, migrated, "", nil
}

// merge sets a hydrated value into state. Under AllKeys the blob is merged slice by slice,
// so slices missing from the blob keep their defaults.
func (p *Plugin) merge(ctx context.Context, state store.State, t target, value any, only map[string]struct{}) store.State {
	if !t.key.IsAll() {
		return withValueAtPath(state, t.key.Path(), value)
	}

	blob, ok := value.(map[string]any)
	if !ok {
		p.logWarnContext(ctx, logMsgNotAnObject, logAttrAddress, t.address)
		return state
	}

	for name, slice := range blob {
		if only != nil {
			if _, wanted := only[name]; !wanted {
				continue
			}
		}

		state[name] = slice
	}

	return state
}

func (p *Plugin) persistTarget(ctx context.Context, state store.State, t target, metrics *metricsObserver) (bool, string, error) {
	var value any = state

	if !t.key.IsAll() {
		var found bool
		if value, found = valueAtPath(state, t.key.Path()); !found {
			return false, "", nil
		}
	}

	if p.beforeSerialize != nil {
		copied, err := copystructure.Copy(value)
		if err != nil {
			return false, errorTypeHook, errors.Join(ErrHookFailed, fmt.Errorf("copying %q: %w", t.address, err))
		}

		if value, err = p.beforeSerialize(copied, t.key); err != nil {
			return false, errorTypeHook, errors.Join(ErrHookFailed, fmt.Errorf("before serialize %q: %w", t.address, err))
		}
	}

	raw, err := p.serializer.Serialize(value)
	if err != nil {
		return false, errorTypeSerialize, errors.Join(ErrSerializingStateFailed, fmt.Errorf("key %q: %w", t.address, err))
	}

	unchanged, err := p.unchanged(ctx, t.address, raw)
	if err != nil {
		return false, errorTypeRead, err
	}

	if unchanged {
		metrics.recordSkippedWrite(t.address)
		return false, "", nil
	}

	if err = p.engine.SetItem(ctx, t.address, raw); err != nil {
		return false, errorTypeWrite, errors.Join(ErrWritingStateFailed, fmt.Errorf("key %q: %w", t.address, err))
	}

	p.remember(t.address, raw)
	metrics.recordWrite(t.address)

	return true, "", nil
}

// unchanged compares raw with the last known value at address, reading the engine on a cache miss.
func (p *Plugin) unchanged(ctx context.Context, address string, raw any) (bool, error) {
	p.mu.Lock()
	previous, cached := p.lastRaw[address]
	p.mu.Unlock()

	if !cached {
		stored, found, err := p.engine.GetItem(ctx, address)
		if err != nil {
			return false, errors.Join(ErrReadingStateFailed, fmt.Errorf("key %q: %w", address, err))
		}

		if !found {
			return false, nil
		}

		previous = stored
	}

	return reflect.DeepEqual(previous, raw), nil
}

func (p *Plugin) remember(address string, raw any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastRaw[address] = raw
}

// targets resolves the current key set into storage addresses. A non-nil only limits
// enumerated keys to those whose top-level slice is listed.
func (p *Plugin) targets(only map[string]struct{}) []target {
	if p.registry.PersistsAllKeys() {
		return []target{{key: AllKeys, address: Address(p.namespace, p.defaultKey)}}
	}

	keys := p.registry.Keys()
	targets := make([]target, 0, len(keys))

	for _, key := range keys {
		if only != nil {
			if _, wanted := only[key.Path()[0]]; !wanted {
				continue
			}
		}

		targets = append(targets, target{key: key, address: Address(p.namespace, key.String())})
	}

	return targets
}

// addedSlices returns the slices an UpdateState adds, or nil for actions that concern the whole state.
func addedSlices(action store.Action) map[string]struct{} {
	var added store.State

	switch a := action.(type) {
	case store.UpdateState:
		added = a.AddedStates
	case *store.UpdateState:
		if a == nil {
			return nil
		}
		added = a.AddedStates
	default:
		return nil
	}

	only := make(map[string]struct{}, len(added))
	for name := range added {
		only[strings.TrimSpace(name)] = struct{}{}
	}

	return only
}
