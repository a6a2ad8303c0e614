package workspace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironclaw/core/internal/docstore"
)

func testFacade(t *testing.T) *Facade {
	t.Helper()
	store := docstore.New(docstore.NewMemoryBackend())
	layers := []Layer{
		{Name: "primary", Scope: "primary", Sensitivity: SensitivityShared, Writable: true},
		{Name: "private", Scope: "private", Sensitivity: SensitivityPrivate, Writable: true},
	}
	return NewFacade(store, nil, layers, NewDefaultClassifier())
}

func TestLoadWorkspaceParsesIdentityAndUser(t *testing.T) {
	ctx := context.Background()
	f := testFacade(t)
	_, err := f.Write(ctx, "IDENTITY.md", "- Name: Orin\n- Creature: fox\n- Vibe: dry wit\n- Emoji: 🦊\n")
	require.NoError(t, err)
	_, err = f.Write(ctx, "USER.md", "- Name: Dana\n- Preferred address: Dana\n- Timezone: UTC\n")
	require.NoError(t, err)
	_, err = f.Write(ctx, "SOUL.md", "Be concise.")
	require.NoError(t, err)

	wc, err := LoadWorkspace(ctx, f, DefaultLoaderPaths())
	require.NoError(t, err)
	require.NotNil(t, wc.Identity)
	assert.Equal(t, "Orin", wc.Identity.Name)
	assert.Equal(t, "fox", wc.Identity.Creature)
	require.NotNil(t, wc.User)
	assert.Equal(t, "Dana", wc.User.Name)
	assert.Equal(t, "UTC", wc.User.Timezone)
}

func TestLoadWorkspaceToleratesMissingDocuments(t *testing.T) {
	ctx := context.Background()
	f := testFacade(t)
	wc, err := LoadWorkspace(ctx, f, DefaultLoaderPaths())
	require.NoError(t, err)
	assert.Empty(t, wc.SoulContent)
	assert.Nil(t, wc.Identity)
}

func TestSystemPromptContextComposesFields(t *testing.T) {
	wc := &WorkspaceContext{
		SoulContent: "Be concise.",
		Identity:    &Identity{Name: "Orin", Vibe: "dry wit"},
		User:        &UserProfile{Name: "Dana", Timezone: "UTC"},
	}
	prompt := wc.SystemPromptContext()
	assert.Contains(t, prompt, "Be concise.")
	assert.Contains(t, prompt, "Your name is Orin.")
	assert.Contains(t, prompt, "Your vibe is dry wit.")
	assert.Contains(t, prompt, "You are talking to Dana")
	assert.Contains(t, prompt, "Their timezone is UTC.")
}
