package secretstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// probeKey is looked up to check that the keyring answers at all.
const probeKey = "__cloudsession_probe__"

// KeyringStore provides OS-native secure credential storage for secrets.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
type KeyringStore struct{}

// Compile-time check to ensure KeyringStore implements Store
var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore backed by the OS-native credential storage.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

// Available reports whether the OS keyring can be reached.
// A missing probe entry means the keyring works; any other error means it does not.
func (k *KeyringStore) Available(service string) bool {
	_, err := keyring.Get(service, probeKey)
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}

// Get returns the secret from the system keyring. Returns ErrNotFound if missing or empty.
func (k *KeyringStore) Get(ctx context.Context, service, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateAddress(service, key); err != nil {
		return "", err
	}

	secret, err := keyring.Get(service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("reading %s/%s from keyring: %w", service, key, err)
	}

	if secret == "" {
		return "", ErrNotFound
	}

	return secret, nil
}

// Set persists the secret to the system keyring, overwriting any existing value.
func (k *KeyringStore) Set(ctx context.Context, service, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateAddress(service, key); err != nil {
		return err
	}

	if err := keyring.Set(service, key, value); err != nil {
		return fmt.Errorf("writing %s/%s to keyring: %w", service, key, err)
	}
	return nil
}

// Delete removes the secret from the system keyring. Missing secrets are ignored.
func (k *KeyringStore) Delete(ctx context.Context, service, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateAddress(service, key); err != nil {
		return err
	}

	err := keyring.Delete(service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting %s/%s from keyring: %w", service, key, err)
	}
	return nil
}

func validateAddress(service, key string) error {
	if service == "" {
		return fmt.Errorf("service cannot be empty")
	}
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	return nil
}
