package statepersist

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const (
	// DefaultFileEngineDir is used when NewFileEngine is called with an empty directory.
	DefaultFileEngineDir = ".statepersist"

	fileEngineSuffix    = ".state"
	fileEngineTmpPrefix = ".tmp-"
	fileEngineDirPerm   = 0o755
	fileEngineFilePerm  = 0o644
)

// ErrInvalidFileEngineDir is returned when the file engine directory exists but is not a directory.
var ErrInvalidFileEngineDir = errors.New("file engine path is not a directory")

// FileEngine is the local storage engine: one file per key below a directory.
// Writes go to a temp file that is renamed into place, so readers never see partial values.
// It stores string or []byte values only and returns strings.
type FileEngine struct {
	mu          sync.RWMutex
	fs          afero.Fs
	dir         string
	compression bool
}

// FileEngineOption configures a FileEngine.
type FileEngineOption func(*FileEngine) error

// WithFs sets the filesystem, e.g. afero.NewMemMapFs() in tests. Defaults to the OS filesystem.
func WithFs(fs afero.Fs) FileEngineOption {
	return func(e *FileEngine) error {
		if fs == nil {
			return ErrNilStorageEngine
		}

		e.fs = fs

		return nil
	}
}

// WithCompression stores values snappy-compressed.
func WithCompression(enabled bool) FileEngineOption {
	return func(e *FileEngine) error {
		e.compression = enabled
		return nil
	}
}

// NewFileEngine creates a FileEngine writing below dir, creating it when missing.
func NewFileEngine(dir string, options ...FileEngineOption) (*FileEngine, error) {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultFileEngineDir
	}

	e := &FileEngine{
		fs:  afero.NewOsFs(),
		dir: filepath.Clean(dir),
	}

	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}

	info, err := e.fs.Stat(e.dir)

	switch {
	case err == nil && !info.IsDir():
		return nil, ErrInvalidFileEngineDir
	case err == nil:
		return e, nil
	case !os.IsNotExist(err):
		return nil, err
	}

	if mkdirErr := e.fs.MkdirAll(e.dir, fileEngineDirPerm); mkdirErr != nil {
		return nil, mkdirErr
	}

	return e, nil
}

// Dir returns the directory the engine writes to.
func (e *FileEngine) Dir() string {
	return e.dir
}

// GetItem implements StorageEngine.
func (e *FileEngine) GetItem(_ context.Context, key string) (any, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	content, err := afero.ReadFile(e.fs, e.fileName(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}

		return nil, false, err
	}

	if e.compression {
		decoded, decodeErr := snappy.Decode(nil, content)
		if decodeErr != nil {
			return nil, false, decodeErr
		}

		content = decoded
	}

	return string(content), true, nil
}

// SetItem implements StorageEngine.
func (e *FileEngine) SetItem(_ context.Context, key string, value any) error {
	content, err := stringOrBytes(value)
	if err != nil {
		return err
	}

	if e.compression {
		content = snappy.Encode(nil, content)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tmpName := filepath.Join(e.dir, fileEngineTmpPrefix+uuid.NewString())

	if err = afero.WriteFile(e.fs, tmpName, content, fileEngineFilePerm); err != nil {
		return err
	}

	if err = e.fs.Rename(tmpName, e.fileName(key)); err != nil {
		_ = e.fs.Remove(tmpName)
		return err
	}

	return nil
}

// RemoveItem implements StorageEngine. Removing a missing key is not an error.
func (e *FileEngine) RemoveItem(_ context.Context, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.fs.Remove(e.fileName(key)); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

// Clear implements StorageEngine. Only files written by the engine are removed.
func (e *FileEngine) Clear(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	names, err := e.stateFiles()
	if err != nil {
		return err
	}

	for _, name := range names {
		if removeErr := e.fs.Remove(filepath.Join(e.dir, name)); removeErr != nil && !os.IsNotExist(removeErr) {
			return removeErr
		}
	}

	return nil
}

// Length implements StorageEngine.
func (e *FileEngine) Length(_ context.Context) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names, err := e.stateFiles()
	if err != nil {
		return 0, err
	}

	return len(names), nil
}

// Keys returns all stored keys in ascending order.
func (e *FileEngine) Keys(_ context.Context) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names, err := e.stateFiles()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(names))
	for _, name := range names {
		key, unescapeErr := url.PathUnescape(strings.TrimSuffix(name, fileEngineSuffix))
		if unescapeErr != nil {
			continue
		}

		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys, nil
}

// fileName maps a key to a flat file name; keys may contain separators like ":" or "/".
func (e *FileEngine) fileName(key string) string {
	return filepath.Join(e.dir, url.PathEscape(key)+fileEngineSuffix)
}

func (e *FileEngine) stateFiles() ([]string, error) {
	entries, err := afero.ReadDir(e.fs, e.dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileEngineSuffix) {
			continue
		}

		names = append(names, entry.Name())
	}

	return names, nil
}
