package secretstore

import (
	"log/slog"
)

// Backend names a Store implementation.
type Backend string

const (
	BackendKeyring Backend = "keyring"
	BackendFile    Backend = "file"
)

// Auto returns the keyring store when the OS keyring answers for service,
// otherwise a FileStore at filePath.
func Auto(service, filePath string) (Store, Backend, error) {
	kr := NewKeyringStore()
	if kr.Available(service) {
		return kr, BackendKeyring, nil
	}

	slog.Debug("os keyring unavailable, falling back to file storage", "path", filePath)

	fs, err := NewFileStore(filePath)
	if err != nil {
		return nil, "", err
	}
	return fs, BackendFile, nil
}
