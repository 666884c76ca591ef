package secretstore_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/cloudsession/internal/secretstore"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "secrets.json")

	store, err := secretstore.NewFileStore(path)
	require.NoError(t, err)

	_, err = store.Get(ctx, "svc", "refresh_token")
	require.ErrorIs(t, err, secretstore.ErrNotFound)

	require.NoError(t, store.Set(ctx, "svc", "refresh_token", "r1"))
	require.NoError(t, store.Set(ctx, "other", "refresh_token", "r2"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// a fresh instance sees the persisted data
	reopened, err := secretstore.NewFileStore(path)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "svc", "refresh_token")
	require.NoError(t, err)
	assert.Equal(t, "r1", got)

	require.NoError(t, reopened.Delete(ctx, "svc", "refresh_token"))
	_, err = reopened.Get(ctx, "svc", "refresh_token")
	require.ErrorIs(t, err, secretstore.ErrNotFound)

	got, err = reopened.Get(ctx, "other", "refresh_token")
	require.NoError(t, err)
	assert.Equal(t, "r2", got)
}

func TestFileStore_DeleteMissing(t *testing.T) {
	ctx := context.Background()
	store, err := secretstore.NewFileStore(filepath.Join(t.TempDir(), "secrets.json"))
	require.NoError(t, err)

	// no file yet
	require.NoError(t, store.Delete(ctx, "svc", "refresh_token"))

	require.NoError(t, store.Set(ctx, "svc", "a", "1"))
	// file exists, key does not
	require.NoError(t, store.Delete(ctx, "svc", "refresh_token"))
}

func TestFileStore_InsecurePermissions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "secrets.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"svc":{"k":"v"}}`), 0644))

	store, err := secretstore.NewFileStore(path)
	require.NoError(t, err)

	_, err = store.Get(ctx, "svc", "k")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "insecure permissions"))
}

func TestNewFileStore_EmptyPath(t *testing.T) {
	_, err := secretstore.NewFileStore("")
	assert.Error(t, err)
}
