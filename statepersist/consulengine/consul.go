package consulengine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/hashicorp/consul/api"

	"github.com/AntonStoeckl/persistent-state-go/statepersist"
)

// DefaultPrefix is the KV prefix the engine stores its pairs below unless WithPrefix is used.
const DefaultPrefix = "statepersist/"

const (
	logMsgRequest       = "statepersist: consul kv request"
	logMsgRequestFailed = "statepersist: consul kv request failed"
	logAttrOperation    = "operation"
	logAttrKey          = "key"
	logAttrError        = "error"
)

var (
	// ErrNilClient is returned when a constructor receives a nil client or KV.
	ErrNilClient = errors.New("consul client must not be nil")

	// ErrEmptyPrefix is returned by WithPrefix for an empty prefix.
	ErrEmptyPrefix = errors.New("consul kv prefix must not be empty")

	// ErrRequestFailed is returned when a Consul KV request failed.
	ErrRequestFailed = errors.New("consul kv request failed")
)

// KV is the part of the Consul KV API the engine uses. *api.KV satisfies it.
type KV interface {
	Get(key string, q *api.QueryOptions) (*api.KVPair, *api.QueryMeta, error)
	Put(p *api.KVPair, q *api.WriteOptions) (*api.WriteMeta, error)
	Delete(key string, w *api.WriteOptions) (*api.WriteMeta, error)
	DeleteTree(prefix string, w *api.WriteOptions) (*api.WriteMeta, error)
	Keys(prefix, separator string, q *api.QueryOptions) ([]string, *api.QueryMeta, error)
}

// Engine is a statepersist.StorageEngine backed by Consul KV. GetItem returns strings.
type Engine struct {
	kv     KV
	prefix string
	logger statepersist.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine) error

// WithPrefix sets the KV prefix. A trailing "/" is added when missing.
func WithPrefix(prefix string) Option {
	return func(e *Engine) error {
		prefix = strings.Trim(strings.TrimSpace(prefix), "/")
		if prefix == "" {
			return ErrEmptyPrefix
		}

		e.prefix = prefix + "/"

		return nil
	}
}

// WithLogger sets the logger for the Engine. Requests are logged at debug level, failures at error level.
func WithLogger(logger statepersist.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// NewEngine creates an Engine on the KV endpoint of client.
func NewEngine(client *api.Client, options ...Option) (*Engine, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	return NewEngineFromKV(client.KV(), options...)
}

// NewEngineFromKV creates an Engine on any KV implementation.
func NewEngineFromKV(kv KV, options ...Option) (*Engine, error) {
	if kv == nil {
		return nil, ErrNilClient
	}

	e := &Engine{kv: kv, prefix: DefaultPrefix}

	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Prefix returns the KV prefix the engine owns.
func (e *Engine) Prefix() string {
	return e.prefix
}

// GetItem implements statepersist.StorageEngine.
func (e *Engine) GetItem(ctx context.Context, key string) (any, bool, error) {
	e.logRequest("get", key)

	pair, _, err := e.kv.Get(e.path(key), (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, false, e.failed("get", key, err)
	}

	if pair == nil {
		return nil, false, nil
	}

	return string(pair.Value), true, nil
}

// SetItem implements statepersist.StorageEngine. Only string and []byte values are accepted.
func (e *Engine) SetItem(ctx context.Context, key string, value any) error {
	var data []byte

	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = append([]byte(nil), v...)
	default:
		return fmt.Errorf("%w: got %T", statepersist.ErrUnsupportedValue, value)
	}

	e.logRequest("set", key)

	if _, err := e.kv.Put(&api.KVPair{Key: e.path(key), Value: data}, (&api.WriteOptions{}).WithContext(ctx)); err != nil {
		return e.failed("set", key, err)
	}

	return nil
}

// RemoveItem implements statepersist.StorageEngine. Removing a missing key is not an error.
func (e *Engine) RemoveItem(ctx context.Context, key string) error {
	e.logRequest("remove", key)

	if _, err := e.kv.Delete(e.path(key), (&api.WriteOptions{}).WithContext(ctx)); err != nil {
		return e.failed("remove", key, err)
	}

	return nil
}

// Clear implements statepersist.StorageEngine by deleting the engine's prefix tree.
func (e *Engine) Clear(ctx context.Context) error {
	e.logRequest("clear", e.prefix)

	if _, err := e.kv.DeleteTree(e.prefix, (&api.WriteOptions{}).WithContext(ctx)); err != nil {
		return e.failed("clear", e.prefix, err)
	}

	return nil
}

// Length implements statepersist.StorageEngine.
func (e *Engine) Length(ctx context.Context) (int, error) {
	keys, err := e.Keys(ctx)
	if err != nil {
		return 0, err
	}

	return len(keys), nil
}

// Keys returns the stored keys in ascending order, without the prefix.
func (e *Engine) Keys(ctx context.Context) ([]string, error) {
	e.logRequest("keys", e.prefix)

	paths, _, err := e.kv.Keys(e.prefix, "", (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, e.failed("keys", e.prefix, err)
	}

	keys := make([]string, 0, len(paths))
	for _, path := range paths {
		escaped := strings.TrimPrefix(path, e.prefix)
		if escaped == "" || strings.Contains(escaped, "/") {
			continue
		}

		key, unescapeErr := url.PathUnescape(escaped)
		if unescapeErr != nil {
			continue
		}

		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys, nil
}

// path maps a storage address to a KV path. Escaping keeps "/" in addresses from creating sub trees.
func (e *Engine) path(key string) string {
	return e.prefix + url.PathEscape(key)
}

func (e *Engine) logRequest(operation, key string) {
	if e.logger != nil {
		e.logger.Debug(logMsgRequest, logAttrOperation, operation, logAttrKey, key)
	}
}

func (e *Engine) failed(operation, key string, err error) error {
	if e.logger != nil {
		e.logger.Error(logMsgRequestFailed, logAttrOperation, operation, logAttrKey, key, logAttrError, err.Error())
	}

	return errors.Join(ErrRequestFailed, fmt.Errorf("%s %q: %w", operation, key, err))
}
