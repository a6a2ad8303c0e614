package skills

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMinimalManifest(t *testing.T) {
	raw := `
[skill]
name = "test-skill"
version = "0.1.0"
description = "A test skill"

[prompt]
content = "Do the thing."
`
	m, err := ParseManifest([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "test-skill", m.Name())
	assert.Equal(t, "0.1.0", m.Skill.Version)
	assert.Equal(t, ActivationExplicit, m.Skill.Activation)
	assert.Empty(t, m.Permissions.Tools)
	assert.Nil(t, m.Permissions.MaxToolCalls)
	assert.Equal(t, "Do the thing.", m.Prompt.Content)
}

func TestParseFullManifest(t *testing.T) {
	raw := `
[skill]
name = "pr-review"
version = "1.0.0"
description = "Reviews GitHub pull requests"
author = "alice"
source_url = "https://github.com/alice/skills"
command = "review"
activation = "command"

[permissions]
tools = ["http", "json", "memory_search"]
domains = ["api.github.com", "github.com"]
workspace_read = ["projects/", "context/"]
max_tool_calls = 15

[prompt]
content = "You are reviewing a pull request."
`
	m, err := ParseManifest([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "pr-review", m.Name())
	assert.Equal(t, ActivationCommand, m.Skill.Activation)
	cmd, ok := m.Command()
	require.True(t, ok)
	assert.Equal(t, "review", cmd)
	assert.Equal(t, []string{"http", "json", "memory_search"}, m.Permissions.Tools)
	assert.Equal(t, []string{"api.github.com", "github.com"}, m.Permissions.Domains)
	assert.Equal(t, []string{"projects/", "context/"}, m.Permissions.WorkspaceRead)
	require.NotNil(t, m.Permissions.MaxToolCalls)
	assert.Equal(t, uint32(15), *m.Permissions.MaxToolCalls)
}

func TestParseRejectsEmptyName(t *testing.T) {
	raw := `
[skill]
name = ""
version = "1.0.0"
description = "Bad"

[prompt]
content = "Something"
`
	_, err := ParseManifest([]byte(raw))
	require.Error(t, err)
}

func TestParseRejectsEmptyPrompt(t *testing.T) {
	raw := `
[skill]
name = "test"
version = "1.0.0"
description = "Bad"

[prompt]
content = ""
`
	_, err := ParseManifest([]byte(raw))
	require.Error(t, err)
}

func TestParseRejectsCommandActivationWithoutCommandField(t *testing.T) {
	raw := `
[skill]
name = "test"
version = "1.0.0"
description = "Bad"
activation = "command"

[prompt]
content = "Something"
`
	_, err := ParseManifest([]byte(raw))
	require.Error(t, err)
}

func TestParseRejectsUnsafeName(t *testing.T) {
	raw := `
[skill]
name = "../escape"
version = "1.0.0"
description = "Bad"

[prompt]
content = "Something"
`
	_, err := ParseManifest([]byte(raw))
	require.Error(t, err)
}

func TestParseInvalidTOMLSyntax(t *testing.T) {
	_, err := ParseManifest([]byte("this is not valid toml {{{"))
	require.Error(t, err)
}

func TestParseMissingRequiredSections(t *testing.T) {
	raw := `
[skill]
name = "test"
version = "1.0.0"
description = "No prompt"
`
	_, err := ParseManifest([]byte(raw))
	require.Error(t, err)
}

func TestParseDefaultPermissions(t *testing.T) {
	raw := `
[skill]
name = "minimal"
version = "1.0.0"
description = "Minimal"

[prompt]
content = "Do stuff."
`
	m, err := ParseManifest([]byte(raw))
	require.NoError(t, err)
	assert.Empty(t, m.Permissions.Tools)
	assert.Empty(t, m.Permissions.Domains)
	assert.Empty(t, m.Permissions.WorkspaceRead)
	assert.Nil(t, m.Permissions.MaxToolCalls)
}

func TestContentHashIsStableForSameBytes(t *testing.T) {
	raw := []byte("identical content")
	assert.Equal(t, ContentHash(raw), ContentHash(raw))
	assert.NotEqual(t, ContentHash(raw), ContentHash([]byte("different content")))
}
