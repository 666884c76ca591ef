// Package recordstore persists non-secret session fields such as the selected
// account id and its owner email.
package recordstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Get when the key has no value.
var ErrNotFound = errors.New("record not found")

// Store is a string key-value store with atomic single-key operations.
// It offers no cross-key transactions.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes the key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error
}
