package statepersist

import (
	"errors"
	"io"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Config is the declarative part of the plugin configuration, e.g. loaded from a YAML file.
// Migrations, hooks and serializers are code and are passed as options.
type Config struct {
	Keys            []string `mapstructure:"keys"`
	Storage         string   `mapstructure:"storage"`
	StorageDir      string   `mapstructure:"storage_dir"`
	Compression     bool     `mapstructure:"compression"`
	Namespace       string   `mapstructure:"namespace"`
	DefaultKey      string   `mapstructure:"default_key"`
	DevelopmentMode bool     `mapstructure:"development_mode"`
}

// DecodeConfig decodes a generic map into a Config. Unknown fields are rejected.
func DecodeConfig(raw map[string]any) (Config, error) {
	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return Config{}, errors.Join(ErrInvalidConfig, err)
	}

	if err = decoder.Decode(raw); err != nil {
		return Config{}, errors.Join(ErrInvalidConfig, err)
	}

	if _, err = ParseStorageOption(cfg.Storage); err != nil {
		return Config{}, errors.Join(ErrInvalidConfig, err)
	}

	return cfg, nil
}

// LoadConfigYAML reads a YAML document into a Config. An empty document yields the zero Config.
func LoadConfigYAML(r io.Reader) (Config, error) {
	raw := make(map[string]any)

	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Join(ErrInvalidConfig, err)
	}

	return DecodeConfig(raw)
}

// LoadConfigFile reads a YAML config file from fs.
func LoadConfigFile(fs afero.Fs, path string) (Config, error) {
	file, err := fs.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = file.Close() }()

	return LoadConfigYAML(file)
}

// RootKeys returns the configured keys. No keys means AllKeys.
func (c Config) RootKeys() []StorageKey {
	keys := make([]StorageKey, 0, len(c.Keys))
	for _, key := range c.Keys {
		keys = append(keys, StorageKey(key))
	}

	return keys
}

// NewRegistry creates the keys registry for the configured root keys.
func (c Config) NewRegistry(options ...RegistryOption) (*Registry, error) {
	options = append([]RegistryOption{WithDevelopmentMode(c.DevelopmentMode)}, options...)

	return NewRegistry(c.RootKeys(), options...)
}

// Options converts the configuration into plugin options.
func (c Config) Options() ([]Option, error) {
	storage, err := ParseStorageOption(c.Storage)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	options := []Option{WithStorage(storage, c.StorageDir)}

	if storage == StorageOptionLocal && c.Compression {
		engine, engineErr := NewFileEngine(c.StorageDir, WithCompression(true))
		if engineErr != nil {
			return nil, engineErr
		}

		options = append(options, WithEngine(engine))
	}

	if c.Namespace != "" {
		options = append(options, WithNamespace(c.Namespace))
	}

	if c.DefaultKey != "" {
		options = append(options, WithDefaultKey(c.DefaultKey))
	}

	return options, nil
}
