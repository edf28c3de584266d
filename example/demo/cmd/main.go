package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/consul/api"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"

	"github.com/AntonStoeckl/persistent-state-go/example/counter"
	"github.com/AntonStoeckl/persistent-state-go/statepersist"
	"github.com/AntonStoeckl/persistent-state-go/statepersist/consulengine"
	"github.com/AntonStoeckl/persistent-state-go/statepersist/oteladapters"
	"github.com/AntonStoeckl/persistent-state-go/statepersist/postgresengine"
	"github.com/AntonStoeckl/persistent-state-go/store"
)

const instrumentationName = "statepersist-demo"

// Flags are the command line options of the demo.
type Flags struct {
	ConfigPath    string
	StorageDir    string
	DSN           string
	ConsulAddress string
	Namespace     string
	Increments    int
	Name          string
	Theme         string
	Reset         bool
	Verbose       bool
	Observability bool
}

func main() {
	flags := parseFlags()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := slog.LevelInfo
	if flags.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(ctx, flags, afero.NewOsFs(), logger, os.Stdout); err != nil {
		log.Fatalf("demo failed: %v", err)
	}
}

func parseFlags() Flags {
	var flags Flags

	flag.StringVar(&flags.ConfigPath, "config", "", "YAML config file (keys, storage, storage_dir, compression, namespace, ...)")
	flag.StringVar(&flags.StorageDir, "dir", "", "Directory of the local file engine, overrides the config")
	flag.StringVar(&flags.DSN, "dsn", "", "Persist into PostgreSQL instead of files")
	flag.StringVar(&flags.ConsulAddress, "consul", "", "Persist into Consul KV at this address instead of files")
	flag.StringVar(&flags.Namespace, "namespace", "", "Storage namespace, overrides the config")
	flag.IntVar(&flags.Increments, "increment", 1, "Number of increments to dispatch")
	flag.StringVar(&flags.Name, "name", "", "Name to add to the names slice")
	flag.StringVar(&flags.Theme, "theme", "", "Theme to set")
	flag.BoolVar(&flags.Reset, "reset", false, "Remove the persisted state before starting")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Log at debug level")
	flag.BoolVar(&flags.Observability, "observability-enabled", false, "Report spans and metrics through the global OpenTelemetry providers")

	flag.Parse()

	return flags
}

func run(ctx context.Context, flags Flags, fs afero.Fs, logger *slog.Logger, out io.Writer) error {
	cfg, err := loadConfig(fs, flags)
	if err != nil {
		return err
	}

	registry, err := cfg.NewRegistry(statepersist.WithRegistryLogger(logger))
	if err != nil {
		return err
	}

	options, err := cfg.Options()
	if err != nil {
		return err
	}

	options = append(options,
		statepersist.WithMigrations(counter.CounterMigrations()...),
		statepersist.WithLogger(logger),
	)

	engineOption, closeEngine, err := remoteEngine(ctx, flags, logger)
	if err != nil {
		return err
	}
	defer closeEngine()

	if engineOption != nil {
		options = append(options, engineOption)
	}

	if flags.Observability {
		options = append(options,
			statepersist.WithMetrics(oteladapters.NewMetricsCollector(otel.Meter(instrumentationName))),
			statepersist.WithTracing(oteladapters.NewTracingCollector(otel.Tracer(instrumentationName))),
			statepersist.WithContextualLogger(oteladapters.NewSlogBridgeLogger(instrumentationName)),
		)
	}

	plugin, err := statepersist.NewPlugin(registry, options...)
	if err != nil {
		return err
	}

	if flags.Reset {
		if err = plugin.Purge(ctx); err != nil {
			return err
		}
	}

	s, err := store.New(ctx, store.WithSlices(counter.Slices()...), store.WithPlugins(plugin), store.WithLogger(logger))
	if err != nil {
		return err
	}

	for i := 0; i < flags.Increments; i++ {
		if err = s.Dispatch(ctx, counter.Increment{}); err != nil {
			return err
		}
	}

	if flags.Name != "" {
		if err = s.Dispatch(ctx, counter.AddName{Name: flags.Name}); err != nil {
			return err
		}
	}

	if flags.Theme != "" {
		if err = s.Dispatch(ctx, counter.SetTheme{Theme: flags.Theme}); err != nil {
			return err
		}
	}

	state, err := s.Snapshot()
	if err != nil {
		return err
	}

	snapshot, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, string(snapshot))

	return err
}

// loadConfig reads the YAML config when given and applies the flag overrides.
// Without a config the demo persists counter.PersistedKeys into files.
func loadConfig(fs afero.Fs, flags Flags) (statepersist.Config, error) {
	cfg := statepersist.Config{}

	if flags.ConfigPath != "" {
		loaded, err := statepersist.LoadConfigFile(fs, flags.ConfigPath)
		if err != nil {
			return statepersist.Config{}, err
		}

		cfg = loaded
	} else {
		for _, key := range counter.PersistedKeys() {
			cfg.Keys = append(cfg.Keys, key.String())
		}
	}

	if flags.StorageDir != "" {
		cfg.StorageDir = flags.StorageDir
	}

	if flags.Namespace != "" {
		cfg.Namespace = flags.Namespace
	}

	return cfg, nil
}

// remoteEngine builds the postgres or consul engine selected by flags, or nothing.
func remoteEngine(ctx context.Context, flags Flags, logger *slog.Logger) (statepersist.Option, func(), error) {
	noop := func() {}

	switch {
	case flags.DSN != "":
		pool, err := pgxpool.New(ctx, flags.DSN)
		if err != nil {
			return nil, noop, fmt.Errorf("connecting to postgres: %w", err)
		}

		engine, err := postgresengine.NewEngineFromPGXPool(pool, postgresengine.WithLogger(logger))
		if err != nil {
			pool.Close()
			return nil, noop, err
		}

		if err = engine.CreateTable(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}

		return statepersist.WithEngine(engine), pool.Close, nil

	case flags.ConsulAddress != "":
		consulConfig := api.DefaultConfig()
		consulConfig.Address = flags.ConsulAddress

		client, err := api.NewClient(consulConfig)
		if err != nil {
			return nil, noop, fmt.Errorf("connecting to consul: %w", err)
		}

		engine, err := consulengine.NewEngine(client, consulengine.WithLogger(logger))
		if err != nil {
			return nil, noop, err
		}

		return statepersist.WithEngine(engine), noop, nil

	default:
		return nil, noop, nil
	}
}
