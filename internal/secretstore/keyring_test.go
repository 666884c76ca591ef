package secretstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/florianilch/cloudsession/internal/secretstore"
)

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()
	store := secretstore.NewKeyringStore()

	_, err := store.Get(ctx, "svc", "refresh_token")
	require.ErrorIs(t, err, secretstore.ErrNotFound)

	require.NoError(t, store.Set(ctx, "svc", "refresh_token", "r1"))
	got, err := store.Get(ctx, "svc", "refresh_token")
	require.NoError(t, err)
	assert.Equal(t, "r1", got)

	require.NoError(t, store.Delete(ctx, "svc", "refresh_token"))
	_, err = store.Get(ctx, "svc", "refresh_token")
	require.ErrorIs(t, err, secretstore.ErrNotFound)

	// deleting again is a no-op
	require.NoError(t, store.Delete(ctx, "svc", "refresh_token"))
}

func TestKeyringStore_RejectsEmptyAddress(t *testing.T) {
	keyring.MockInit()
	store := secretstore.NewKeyringStore()

	assert.Error(t, store.Set(context.Background(), "", "k", "v"))
	assert.Error(t, store.Set(context.Background(), "svc", "", "v"))
}

func TestKeyringStore_CancelledContext(t *testing.T) {
	keyring.MockInit()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := secretstore.NewKeyringStore().Get(ctx, "svc", "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAuto(t *testing.T) {
	t.Run("keyring available", func(t *testing.T) {
		keyring.MockInit()

		store, backend, err := secretstore.Auto("svc", t.TempDir()+"/secrets.json")
		require.NoError(t, err)
		assert.Equal(t, secretstore.BackendKeyring, backend)
		assert.IsType(t, &secretstore.KeyringStore{}, store)
	})

	t.Run("keyring unavailable falls back to file", func(t *testing.T) {
		keyring.MockInitWithError(errors.New("no secret service"))
		t.Cleanup(keyring.MockInit)

		store, backend, err := secretstore.Auto("svc", t.TempDir()+"/secrets.json")
		require.NoError(t, err)
		assert.Equal(t, secretstore.BackendFile, backend)

		ctx := context.Background()
		require.NoError(t, store.Set(ctx, "svc", "refresh_token", "r1"))
		got, err := store.Get(ctx, "svc", "refresh_token")
		require.NoError(t, err)
		assert.Equal(t, "r1", got)
	})
}
