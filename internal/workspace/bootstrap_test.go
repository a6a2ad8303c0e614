package workspace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureWorkspaceFilesCreatesMissing(t *testing.T) {
	ctx := context.Background()
	f := testFacade(t)

	result, err := EnsureWorkspaceFiles(ctx, f, DefaultBootstrapFiles(), false)
	require.NoError(t, err)
	assert.Len(t, result.Created, len(DefaultBootstrapFiles()))
	assert.Empty(t, result.Skipped)

	for _, file := range DefaultBootstrapFiles() {
		assert.True(t, f.Exists(ctx, file.Path))
	}
}

func TestEnsureWorkspaceFilesSkipsExistingWithoutOverwrite(t *testing.T) {
	ctx := context.Background()
	f := testFacade(t)

	_, err := f.Write(ctx, "SOUL.md", "custom soul")
	require.NoError(t, err)

	result, err := EnsureWorkspaceFiles(ctx, f, DefaultBootstrapFiles(), false)
	require.NoError(t, err)
	assert.Contains(t, result.Skipped, "SOUL.md")
	assert.NotContains(t, result.Created, "SOUL.md")

	doc, err := f.Read(ctx, "SOUL.md")
	require.NoError(t, err)
	assert.Equal(t, "custom soul", doc.Content)
}

func TestEnsureWorkspaceFilesOverwritesWhenRequested(t *testing.T) {
	ctx := context.Background()
	f := testFacade(t)

	_, err := f.Write(ctx, "SOUL.md", "custom soul")
	require.NoError(t, err)

	result, err := EnsureWorkspaceFiles(ctx, f, DefaultBootstrapFiles(), true)
	require.NoError(t, err)
	assert.Contains(t, result.Created, "SOUL.md")
}
