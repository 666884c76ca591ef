package secretstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore provides atomic file-based secret storage with secure permissions.
// All secrets live in one JSON document keyed by service, then key.
// Writes use temp file + rename for crash safety.
type FileStore struct {
	filePath string

	// mu serializes read-modify-write cycles within this process
	mu sync.Mutex
}

// Compile-time check to ensure FileStore implements Store
var _ Store = (*FileStore)(nil)

type secretFile map[string]map[string]string

// NewFileStore creates a FileStore for the given path, creating parent directories
// with 0700 permissions if they don't exist.
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return &FileStore{
		filePath: filePath,
	}, nil
}

// Path returns the location of the backing file.
func (f *FileStore) Path() string {
	return f.filePath
}

// Get returns the stored secret. Returns ErrNotFound if the file or entry is
// missing, and an error if the file has insecure permissions.
func (f *FileStore) Get(ctx context.Context, service, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateAddress(service, key); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	secrets, err := f.load()
	if err != nil {
		return "", err
	}

	value := secrets[service][key]
	if value == "" {
		return "", ErrNotFound
	}
	return value, nil
}

// Set stores the secret and atomically rewrites the file.
func (f *FileStore) Set(ctx context.Context, service, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateAddress(service, key); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	secrets, err := f.load()
	if err != nil {
		return err
	}

	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][key] = value

	return f.save(ctx, secrets)
}

// Delete removes the secret. Missing files and entries are ignored.
func (f *FileStore) Delete(ctx context.Context, service, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateAddress(service, key); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	secrets, err := f.load()
	if err != nil {
		return err
	}

	if _, ok := secrets[service][key]; !ok {
		return nil
	}
	delete(secrets[service], key)
	if len(secrets[service]) == 0 {
		delete(secrets, service)
	}

	return f.save(ctx, secrets)
}

// load reads the secret document. A missing file yields an empty document.
func (f *FileStore) load() (secretFile, error) {
	// Check file permissions before reading
	info, err := os.Stat(f.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return make(secretFile), nil
	}
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm() != 0600 {
		return nil, fmt.Errorf("insecure permissions on %s: %04o (expected 0600)", f.filePath, info.Mode().Perm())
	}

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		return nil, err
	}

	secrets := make(secretFile)
	if len(data) == 0 {
		return secrets, nil
	}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secret file %s: %w", f.filePath, err)
	}
	return secrets, nil
}

// save atomically writes the document using temp file + rename for crash safety.
// Sets file permissions to 0600 (owner read/write only).
func (f *FileStore) save(ctx context.Context, secrets secretFile) error {
	data, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("encoding secret file: %w", err)
	}

	// Create secure temp file in same directory for atomic rename
	dir := filepath.Dir(f.filePath)
	tempFile, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
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

	if err := os.Rename(tempName, f.filePath); err != nil {
		return err
	}

	return os.Chmod(f.filePath, 0600)
}
