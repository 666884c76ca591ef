package recordstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/knadh/koanf/parsers/toml/v2"
)

// FileStore keeps records in a flat TOML document.
// Writes use temp file + rename for crash safety.
type FileStore struct {
	filePath string
	parser   *toml.TOML

	mu sync.Mutex
}

// Compile-time check to ensure FileStore implements Store
var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore for the given path, creating parent directories
// with 0700 permissions if they don't exist.
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return nil, err
	}

	return &FileStore{
		filePath: filePath,
		parser:   toml.Parser(),
	}, nil
}

// Get returns the value stored under key, or ErrNotFound.
func (f *FileStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.load()
	if err != nil {
		return "", err
	}

	raw, ok := records[key]
	if !ok {
		return "", ErrNotFound
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("record %q in %s is %T, expected string", key, f.filePath, raw)
	}
	return value, nil
}

// Set stores value under key and atomically rewrites the file.
func (f *FileStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.load()
	if err != nil {
		return err
	}
	records[key] = value

	return f.save(ctx, records)
}

// Delete removes key. Missing files and keys are ignored.
func (f *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := records[key]; !ok {
		return nil
	}
	delete(records, key)

	return f.save(ctx, records)
}

func (f *FileStore) load() (map[string]any, error) {
	data, err := os.ReadFile(f.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]any), nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return make(map[string]any), nil
	}

	records, err := f.parser.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("parsing record file %s: %w", f.filePath, err)
	}
	return records, nil
}

func (f *FileStore) save(ctx context.Context, records map[string]any) error {
	data, err := f.parser.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding record file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(f.filePath), "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.Write(data); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	return os.Rename(tempName, f.filePath)
}
