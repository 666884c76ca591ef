package secretstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Get when no secret exists for the given service and key.
var ErrNotFound = errors.New("secret not found")

// Store reads, writes and deletes secrets in persistent storage.
type Store interface {
	// Get returns the stored secret. Returns ErrNotFound if the secret is missing or empty.
	Get(ctx context.Context, service, key string) (string, error)

	// Set persists the secret, overwriting any existing value.
	Set(ctx context.Context, service, key, value string) error

	// Delete removes the secret. Deleting a missing secret succeeds.
	Delete(ctx context.Context, service, key string) error
}
