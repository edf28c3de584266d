package statepersist

import (
	"strings"
)

// Option defines a functional option for configuring the Plugin.
type Option func(*Plugin) error

// WithEngine sets the storage engine. It takes precedence over WithStorage.
func WithEngine(engine StorageEngine) Option {
	return func(p *Plugin) error {
		if engine == nil {
			return ErrNilStorageEngine
		}

		p.engine = engine

		return nil
	}
}

// WithStorage selects a built-in engine. dir is where the local engine writes its files,
// DefaultFileEngineDir when empty; the session engine ignores it.
func WithStorage(option StorageOption, dir string) Option {
	return func(p *Plugin) error {
		if option != StorageOptionLocal && option != StorageOptionSession {
			return ErrUnknownStorageOption
		}

		p.storage = option
		p.storageDir = dir

		return nil
	}
}

// WithNamespace prefixes every storage address with "<namespace>:".
func WithNamespace(namespace string) Option {
	return func(p *Plugin) error {
		p.namespace = strings.TrimSpace(namespace)
		return nil
	}
}

// WithDefaultKey sets the storage key the whole tree is persisted under in all-keys mode.
func WithDefaultKey(key string) Option {
	return func(p *Plugin) error {
		key = strings.TrimSpace(key)
		if key == "" {
			return ErrEmptyStorageKey
		}

		p.defaultKey = key

		return nil
	}
}

// WithMigrations sets the migration chain applied while hydrating.
func WithMigrations(migrations ...MigrationDescriptor) Option {
	return func(p *Plugin) error {
		for _, migration := range migrations {
			if err := migration.Validate(); err != nil {
				return err
			}
		}

		p.migrations = append(p.migrations[:0:0], migrations...)

		return nil
	}
}

// WithSerializer replaces the default JSON serializer.
func WithSerializer(serializer Serializer) Option {
	return func(p *Plugin) error {
		if serializer == nil {
			return ErrNilSerializer
		}

		p.serializer = serializer

		return nil
	}
}

// WithBeforeSerialize sets a hook that receives a deep copy of each value right before it is serialized.
func WithBeforeSerialize(hook BeforeSerializeFunc) Option {
	return func(p *Plugin) error {
		p.beforeSerialize = hook
		return nil
	}
}

// WithAfterDeserialize sets a hook applied to each hydrated value after parsing and migration.
func WithAfterDeserialize(hook AfterDeserializeFunc) Option {
	return func(p *Plugin) error {
		p.afterDeserialize = hook
		return nil
	}
}

// WithLogger sets the logger for the Plugin.
//
// Info level: hydrated and persisted cycles with counts and durations
// Warn level: persisted blobs that could not be merged
// Error level: deserialization failures and failed operations.
//
// Without any logger, warnings and errors go to slog.Default().
func WithLogger(logger Logger) Option {
	return func(p *Plugin) error {
		p.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger, preferred over WithLogger.
// With oteladapters it correlates log records with the active span.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(p *Plugin) error {
		p.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Plugin.
func WithMetrics(collector MetricsCollector) Option {
	return func(p *Plugin) error {
		p.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Plugin.
func WithTracing(collector TracingCollector) Option {
	return func(p *Plugin) error {
		p.tracingCollector = collector
		return nil
	}
}
