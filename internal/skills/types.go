// Package skills implements the skill system: manifest-declared,
// prompt-level agent behaviors loaded from local files or HTTP(S) URLs,
// deterministically prefiltered against the user's message, and run
// under a hard permission boundary (tool whitelist, domain list,
// workspace-read prefixes, per-turn tool-call budget).
package skills

import "time"

// ActivationMode controls how a skill becomes a candidate for a turn.
type ActivationMode string

const (
	// ActivationExplicit requires the user to invoke the skill by name.
	ActivationExplicit ActivationMode = "explicit"
	// ActivationCommand binds the skill to a slash command keyword.
	ActivationCommand ActivationMode = "command"
)

// Meta is a skill's identifying metadata.
type Meta struct {
	Name        string         `toml:"name"`
	Version     string         `toml:"version"`
	Description string         `toml:"description"`
	Author      string         `toml:"author,omitempty"`
	SourceURL   string         `toml:"source_url,omitempty"`
	Command     string         `toml:"command,omitempty"`
	Activation  ActivationMode `toml:"activation,omitempty"`
	Tags        []string       `toml:"tags,omitempty"`
}

// Permissions are the sandbox boundaries a skill operates under while
// active. They narrow, never widen, the caller's own tool/domain/
// workspace grants.
type Permissions struct {
	Tools         []string `toml:"tools,omitempty"`
	Domains       []string `toml:"domains,omitempty"`
	WorkspaceRead []string `toml:"workspace_read,omitempty"`
	MaxToolCalls  *uint32  `toml:"max_tool_calls,omitempty"`
}

// Activation carries the deterministic prefilter's scoring criteria,
// evaluated with no LLM and no skill content in context.
type Activation struct {
	Keywords         []string `toml:"keywords,omitempty"`
	Tags             []string `toml:"tags,omitempty"`
	Patterns         []string `toml:"patterns,omitempty"`
	MaxContextTokens int      `toml:"max_context_tokens,omitempty"`
}

// Prompt is the skill's instruction content, injected into LLM context
// when the skill is active.
type Prompt struct {
	Content string `toml:"content"`
}

// Manifest is a skill definition parsed from TOML.
type Manifest struct {
	Skill       Meta        `toml:"skill"`
	Permissions Permissions `toml:"permissions"`
	Activation  Activation  `toml:"activation"`
	Prompt      Prompt      `toml:"prompt"`
}

// Name is a convenience accessor for the skill's identifier.
func (m *Manifest) Name() string { return m.Skill.Name }

// Command returns the bound slash command, if any.
func (m *Manifest) Command() (string, bool) {
	return m.Skill.Command, m.Skill.Command != ""
}

// AnalysisVerdict is the outcome of static analysis over a manifest's
// prompt content.
type AnalysisVerdict string

const (
	VerdictPass  AnalysisVerdict = "pass"
	VerdictWarn  AnalysisVerdict = "warn"
	VerdictBlock AnalysisVerdict = "block"
)

// Finding is one static-analysis hit against prompt content.
type Finding struct {
	Category string
	Pattern  string
	Excerpt  string
}

// AnalysisResult reports the verdict and any findings for one manifest.
type AnalysisResult struct {
	Verdict  AnalysisVerdict
	Findings []Finding
}

// LoadedSkill pairs a parsed manifest with its provenance and content
// hash, the unit the prefilter and manager operate on.
type LoadedSkill struct {
	Manifest    *Manifest
	Source      string // file path or URL it was loaded from
	ContentHash string // sha256 of the raw manifest bytes, pins approval
	Analysis    AnalysisResult
}

// Approval records that a user has reviewed and accepted a skill's
// content at a specific hash. A later content change invalidates it.
type Approval struct {
	SkillName   string
	ContentHash string
	ApprovedAt  time.Time
	ApprovedBy  string
}

// Valid reports whether approval still covers skill's current content.
func (a *Approval) Valid(skill *LoadedSkill) bool {
	return a != nil && a.ContentHash == skill.ContentHash
}
