package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mitchellh/copystructure"
)

// State is the application-wide state tree, keyed by slice name.
type State = map[string]any

// Action is anything that can be dispatched to the store.
type Action interface {
	Type() string
}

// Reducer computes the next value of a slice.
type Reducer func(state any, action Action) (any, error)

// NextFunc continues the plugin chain. The last link applies the reducers.
type NextFunc func(ctx context.Context, state State, action Action) (State, error)

// Plugin intercepts every dispatch. It may replace the incoming state, must call next at most once,
// and receives the committed state as next's return value.
type Plugin interface {
	Handle(ctx context.Context, state State, action Action, next NextFunc) (State, error)
}

// PluginFunc adapts a function to the Plugin interface.
type PluginFunc func(ctx context.Context, state State, action Action, next NextFunc) (State, error)

// Handle implements Plugin.
func (f PluginFunc) Handle(ctx context.Context, state State, action Action, next NextFunc) (State, error) {
	return f(ctx, state, action, next)
}

// FeatureInitializer runs before the slices of a lazily added feature are registered.
type FeatureInitializer func(ctx context.Context) error

var (
	// ErrEmptySliceName is returned when a slice without a name is registered.
	ErrEmptySliceName = errors.New("slice name must not be empty")

	// ErrDuplicateSlice is returned when a slice name is registered twice.
	ErrDuplicateSlice = errors.New("slice is already registered")

	// ErrNilPlugin is returned when a nil plugin is supplied.
	ErrNilPlugin = errors.New("plugin must not be nil")

	// ErrNilAction is returned when a nil action is dispatched.
	ErrNilAction = errors.New("action must not be nil")

	// ErrCopyingStateFailed is returned when a state value could not be deep-copied.
	ErrCopyingStateFailed = errors.New("copying state failed")
)

// Store holds the state tree and serializes all dispatches.
type Store struct {
	mu      sync.Mutex
	state   State
	slices  map[string]Slice
	order   []string
	plugins []Plugin
	logger  Logger
}

// Option configures a Store.
type Option func(*Store) error

// WithSlices registers the root slices.
func WithSlices(slices ...Slice) Option {
	return func(s *Store) error {
		for _, slice := range slices {
			if err := s.register(slice); err != nil {
				return err
			}
		}

		return nil
	}
}

// WithPlugins appends plugins to the chain, outermost first.
func WithPlugins(plugins ...Plugin) Option {
	return func(s *Store) error {
		for _, plugin := range plugins {
			if plugin == nil {
				return ErrNilPlugin
			}

			s.plugins = append(s.plugins, plugin)
		}

		return nil
	}
}

// WithLogger sets the logger for dispatch diagnostics.
func WithLogger(logger Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// New creates the store, seeds it with the slice defaults and dispatches InitState.
func New(ctx context.Context, options ...Option) (*Store, error) {
	s := &Store{
		state:  make(State),
		slices: make(map[string]Slice),
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	for _, name := range s.order {
		defaults, err := deepCopy(s.slices[name].Defaults)
		if err != nil {
			return nil, err
		}

		s.state[name] = defaults
	}

	if err := s.Dispatch(ctx, InitState{}); err != nil {
		return nil, err
	}

	return s, nil
}

// Dispatch runs action through the plugin chain and commits the resulting state.
// The state is left untouched when any link returns an error.
func (s *Store) Dispatch(ctx context.Context, action Action) error {
	if action == nil {
		return ErrNilAction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dispatchLocked(ctx, s.state, action)
}

// AddFeature lazily registers slices, e.g. when a feature module is loaded.
// The initializers run first; the new slices are seeded with their defaults and UpdateState is dispatched.
func (s *Store) AddFeature(ctx context.Context, slices []Slice, initializers ...FeatureInitializer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateNew(slices); err != nil {
		return err
	}

	for _, initialize := range initializers {
		if initialize == nil {
			continue
		}

		if err := initialize(ctx); err != nil {
			return err
		}
	}

	next := make(State, len(s.state)+len(slices))
	for name, value := range s.state {
		next[name] = value
	}

	added := make(State, len(slices))

	for _, slice := range slices {
		if err := s.register(slice); err != nil {
			return err
		}

		defaults, err := deepCopy(slice.Defaults)
		if err != nil {
			return err
		}

		name := strings.TrimSpace(slice.Name)
		next[name] = defaults
		added[name] = defaults
	}

	return s.dispatchLocked(ctx, next, UpdateState{AddedStates: added})
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, err := deepCopy(s.state)
	if err != nil {
		return nil, err
	}

	if snapshot == nil {
		return make(State), nil
	}

	return snapshot.(State), nil
}

// Select returns a deep copy of the named slice. Dot paths select nested values.
func (s *Store) Select(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current any = s.state

	for _, segment := range strings.Split(name, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		if current, ok = node[segment]; !ok {
			return nil, false
		}
	}

	value, err := deepCopy(current)
	if err != nil {
		return nil, false
	}

	return value, true
}

func (s *Store) dispatchLocked(ctx context.Context, state State, action Action) error {
	next, err := s.chain(0)(ctx, state, action)
	if err != nil {
		if s.logger != nil {
			s.logger.Error(logMsgDispatchFailed, logAttrAction, action.Type(), logAttrError, err.Error())
		}

		return err
	}

	s.state = next

	if s.logger != nil {
		s.logger.Debug(logMsgDispatched, logAttrAction, action.Type())
	}

	return nil
}

func (s *Store) chain(position int) NextFunc {
	if position == len(s.plugins) {
		return s.reduce
	}

	plugin := s.plugins[position]
	next := s.chain(position + 1)

	return func(ctx context.Context, state State, action Action) (State, error) {
		return plugin.Handle(ctx, state, action, next)
	}
}

// reduce applies every slice reducer that handles the action. Slices without a handler keep their value.
func (s *Store) reduce(_ context.Context, state State, action Action) (State, error) {
	next := make(State, len(state))
	for name, value := range state {
		next[name] = value
	}

	for _, name := range s.order {
		handler, ok := s.slices[name].Handlers[action.Type()]
		if !ok {
			continue
		}

		value, err := handler(next[name], action)
		if err != nil {
			return nil, fmt.Errorf("slice %q handling %q: %w", name, action.Type(), err)
		}

		next[name] = value
	}

	return next, nil
}

func (s *Store) register(slice Slice) error {
	name := strings.TrimSpace(slice.Name)
	if name == "" {
		return ErrEmptySliceName
	}

	if _, exists := s.slices[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateSlice, name)
	}

	slice.Name = name
	s.slices[name] = slice
	s.order = append(s.order, name)

	return nil
}

func (s *Store) validateNew(slices []Slice) error {
	seen := make(map[string]struct{}, len(slices))

	for _, slice := range slices {
		name := strings.TrimSpace(slice.Name)
		if name == "" {
			return ErrEmptySliceName
		}

		if _, exists := s.slices[name]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateSlice, name)
		}

		if _, exists := seen[name]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateSlice, name)
		}

		seen[name] = struct{}{}
	}

	return nil
}

func deepCopy(value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	copied, err := copystructure.Copy(value)
	if err != nil {
		return nil, errors.Join(ErrCopyingStateFailed, err)
	}

	return copied, nil
}
