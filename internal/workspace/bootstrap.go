package workspace

import (
	"context"
	"strings"

	"github.com/ironclaw/core/internal/kerr"
)

// BootstrapFile represents a document to seed in a workspace layer.
type BootstrapFile struct {
	Path    string
	Content string
}

// BootstrapResult captures the documents created or skipped.
type BootstrapResult struct {
	Created []string
	Skipped []string
}

// DefaultBootstrapFiles returns the default bootstrap document set,
// carried over from the teacher's onboarding file templates.
func DefaultBootstrapFiles() []BootstrapFile {
	return []BootstrapFile{
		{
			Path: "AGENTS.md",
			Content: "# AGENTS.md - Workspace Instructions\n\n" +
				"This workspace is the assistant's working directory.\n\n" +
				"## Safety\n" +
				"- Do not exfiltrate secrets or private data.\n" +
				"- Avoid destructive actions unless explicitly requested.\n\n" +
				"## Workflow\n" +
				"- Be concise in chat; put longer output in files.\n" +
				"- Ask clarifying questions when requirements are unclear.\n",
		},
		{
			Path: "SOUL.md",
			Content: "# SOUL.md - Persona & Boundaries\n\n" +
				"- Tone: concise, direct, and friendly.\n" +
				"- Ask clarifying questions when needed.\n",
		},
		{
			Path: "USER.md",
			Content: "# USER.md - User Profile\n\n" +
				"- Name:\n" +
				"- Preferred address:\n" +
				"- Pronouns (optional):\n" +
				"- Timezone (optional):\n" +
				"- Notes:\n",
		},
		{
			Path: "IDENTITY.md",
			Content: "# IDENTITY.md - Agent Identity\n\n" +
				"- Name:\n" +
				"- Creature:\n" +
				"- Vibe:\n" +
				"- Emoji:\n",
		},
		{
			Path:    "TOOLS.md",
			Content: "# TOOLS.md - User Tool Notes (editable)\n\nAdd notes about local tools, conventions, or shortcuts here.\n",
		},
		{
			Path:    "MEMORY.md",
			Content: "# MEMORY.md - Long-Term Memory\n\nCapture durable facts, preferences, and decisions here.\n",
		},
	}
}

// EnsureWorkspaceFiles seeds missing documents into the facade's primary
// layer. Existing documents are left untouched unless overwrite is set.
func EnsureWorkspaceFiles(ctx context.Context, f *Facade, files []BootstrapFile, overwrite bool) (BootstrapResult, error) {
	result := BootstrapResult{}
	for _, file := range files {
		path := strings.TrimSpace(file.Path)
		if path == "" {
			continue
		}
		if !overwrite && f.Exists(ctx, path) {
			result.Skipped = append(result.Skipped, path)
			continue
		}
		if _, err := f.Write(ctx, path, file.Content); err != nil {
			return result, kerr.Wrap(kerr.Storage, err)
		}
		result.Created = append(result.Created, path)
	}
	return result, nil
}
