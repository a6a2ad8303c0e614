package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironclaw/core/internal/kerr"
)

func testStore(t *testing.T) *MemoryStore {
	t.Helper()
	crypto, err := NewAESGCMCrypto("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	return NewMemoryStore(crypto)
}

func TestCreateGetDecryptedRoundtrip(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	meta, err := store.Create(ctx, "user1", CreateParams{Name: "api_key", Value: "sk-super-secret", Provider: "openai"})
	require.NoError(t, err)
	assert.Equal(t, "api_key", meta.Name)

	plain, err := store.GetDecrypted(ctx, "user1", "api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-super-secret", plain.Expose())
}

func TestGetReturnsMetadataOnly(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	_, err := store.Create(ctx, "user1", CreateParams{Name: "k", Value: "v"})
	require.NoError(t, err)

	meta, err := store.Get(ctx, "user1", "k")
	require.NoError(t, err)
	assert.Equal(t, "k", meta.Name)
}

func TestGetDecryptedIncrementsUsageCount(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	_, err := store.Create(ctx, "user1", CreateParams{Name: "k", Value: "v"})
	require.NoError(t, err)

	_, err = store.GetDecrypted(ctx, "user1", "k")
	require.NoError(t, err)
	_, err = store.GetDecrypted(ctx, "user1", "k")
	require.NoError(t, err)

	meta, err := store.Get(ctx, "user1", "k")
	require.NoError(t, err)
	assert.Equal(t, int64(2), meta.UsageCount)
}

func TestDeleteAndList(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	_, err := store.Create(ctx, "user1", CreateParams{Name: "a", Value: "1"})
	require.NoError(t, err)
	_, err = store.Create(ctx, "user1", CreateParams{Name: "b", Value: "2"})
	require.NoError(t, err)

	list, err := store.List(ctx, "user1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, store.Delete(ctx, "user1", "a"))
	list, err = store.List(ctx, "user1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGetNonexistentSecretFails(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	_, err := store.Get(ctx, "user1", "missing")
	require.Error(t, err)
	assert.True(t, kerr.Has(err, kerr.SecretNotFound))
}

func TestCreateDuplicateNameFails(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	_, err := store.Create(ctx, "user1", CreateParams{Name: "k", Value: "v"})
	require.NoError(t, err)
	_, err = store.Create(ctx, "user1", CreateParams{Name: "k", Value: "v2"})
	require.Error(t, err)
	assert.True(t, kerr.Has(err, kerr.AlreadyExists))
}

func TestSecretsAreNotCrossUserVisible(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	_, err := store.Create(ctx, "user1", CreateParams{Name: "k", Value: "v"})
	require.NoError(t, err)
	_, err = store.Get(ctx, "user2", "k")
	require.Error(t, err)
}
