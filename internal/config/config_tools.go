package config

import "time"

type ToolsConfig struct {
	Sandbox      SandboxConfig       `yaml:"sandbox"`
	WebSearch    WebSearchConfig     `yaml:"websearch"`
	MemorySearch MemorySearchConfig  `yaml:"memory_search"`
	Policies     ToolPoliciesConfig  `yaml:"policies"`
	Notes        string              `yaml:"notes"`
	NotesFile    string              `yaml:"notes_file"`
	Execution    ToolExecutionConfig `yaml:"execution"`
	Elevated     ElevatedConfig      `yaml:"elevated"`
	Jobs         ToolJobsConfig      `yaml:"jobs"`
}

// ToolPoliciesConfig defines default allow/deny policies for tools.
type ToolPoliciesConfig struct {
	// Default policy behavior: "allow" or "deny".
	Default string `yaml:"default"`
	// Rules define per-tool allow/deny behavior.
	Rules []ToolPolicyRule `yaml:"rules"`
}

// ToolPolicyRule defines a policy action for a tool, optionally scoped by channel.
type ToolPolicyRule struct {
	Tool     string   `yaml:"tool"`
	Action   string   `yaml:"action"`   // "allow" | "deny"
	Channels []string `yaml:"channels"` // optional channel filters
}

// ToolExecutionConfig controls runtime tool execution behavior.
type ToolExecutionConfig struct {
	MaxIterations   int                   `yaml:"max_iterations"`
	Parallelism     int                   `yaml:"parallelism"`
	Timeout         time.Duration         `yaml:"timeout"`
	MaxAttempts     int                   `yaml:"max_attempts"`
	RetryBackoff    time.Duration         `yaml:"retry_backoff"`
	DisableEvents   bool                  `yaml:"disable_events"`
	MaxToolCalls    int                   `yaml:"max_tool_calls"`
	RequireApproval []string              `yaml:"require_approval"`
	Async           []string              `yaml:"async"`
	Approval        ApprovalConfig        `yaml:"approval"`
	ResultGuard     ToolResultGuardConfig `yaml:"result_guard"`
}

// ApprovalConfig controls tool approval behavior.
type ApprovalConfig struct {
	// Profile is a pre-configured tool access level.
	// Valid profiles: "coding", "messaging", "readonly", "full", "minimal".
	// When set, the profile's default tools are included in the allowlist.
	Profile string `yaml:"profile"`

	// Allowlist contains tools that are always allowed (no approval needed).
	// Supports patterns like "mcp:*", "read_*", "*" (all).
	// Also supports group references like "group:fs", "group:runtime".
	Allowlist []string `yaml:"allowlist"`

	// Denylist contains tools that are always denied.
	// Supports patterns and group references like Allowlist.
	Denylist []string `yaml:"denylist"`

	// SafeBins are stdin-only tools that are safe to auto-allow.
	SafeBins []string `yaml:"safe_bins"`

	// SkillAllowlist auto-allows tools defined by enabled skills.
	SkillAllowlist *bool `yaml:"skill_allowlist"`

	// AskFallback queues approval when UI is unavailable instead of denying.
	AskFallback *bool `yaml:"ask_fallback"`

	// DefaultDecision when no rule matches: "allowed", "denied", or "pending".
	DefaultDecision string `yaml:"default_decision"`

	// RequestTTL is how long approval requests remain valid.
	RequestTTL time.Duration `yaml:"request_ttl"`
}

// ToolResultGuardConfig controls redaction of tool results before persistence.
type ToolResultGuardConfig struct {
	Enabled         bool     `yaml:"enabled"`
	MaxChars        int      `yaml:"max_chars"`
	Denylist        []string `yaml:"denylist"`
	RedactPatterns  []string `yaml:"redact_patterns"`
	RedactionText   string   `yaml:"redaction_text"`
	TruncateSuffix  string   `yaml:"truncate_suffix"`
	SanitizeSecrets bool     `yaml:"sanitize_secrets"` // Applies builtin secret detection patterns
}

// ElevatedConfig controls elevated tool execution behavior and allowlists.
type ElevatedConfig struct {
	// Enabled gates elevated execution. When nil, elevated is disabled by default.
	Enabled *bool `yaml:"enabled"`

	// AllowFrom maps channel/provider to allowed sender identifiers.
	// Example: {"telegram": ["12345", "67890"], "discord": ["*"]}
	AllowFrom map[string][]string `yaml:"allow_from"`

	// Tools lists tool patterns that elevated-full can bypass approvals for.
	// If empty, defaults to ["execute_code"] in gateway logic.
	Tools []string `yaml:"tools"`
}

type SandboxConfig struct {
	Enabled        bool                  `yaml:"enabled"`
	Backend        string                `yaml:"backend"`
	PoolSize       int                   `yaml:"pool_size"`
	MaxPoolSize    int                   `yaml:"max_pool_size"`
	MinIdle        int                   `yaml:"min_idle"`
	MaxIdleTime    time.Duration         `yaml:"max_idle_time"`
	Timeout        time.Duration         `yaml:"timeout"`
	NetworkEnabled bool                  `yaml:"network_enabled"`
	Limits         ResourceLimits        `yaml:"limits"`
	Snapshots      SandboxSnapshotConfig `yaml:"snapshots"`
	Daytona        SandboxDaytonaConfig  `yaml:"daytona"`

	// Mode controls which agents use sandboxing:
	// - "off": sandboxing disabled (default when enabled=false)
	// - "all": all agents use sandboxing
	// - "non-main": only non-main agents use sandboxing (main agent unsandboxed)
	Mode string `yaml:"mode"`

	// Scope controls sandbox isolation level:
	// - "agent": one sandbox container per agent (default)
	// - "session": one sandbox per session
	// - "shared": all agents share one sandbox
	Scope string `yaml:"scope"`

	// WorkspaceRoot is the root directory for sandboxed workspaces.
	WorkspaceRoot string `yaml:"workspace_root"`

	// WorkspaceAccess controls workspace access mode: "readonly", "readwrite", "ro", "rw", or "none".
	WorkspaceAccess string `yaml:"workspace_access"`
}

// SandboxDaytonaConfig configures the Daytona sandbox backend.
type SandboxDaytonaConfig struct {
	APIKey         string         `yaml:"api_key"`
	JWTToken       string         `yaml:"jwt_token"`
	OrganizationID string         `yaml:"organization_id"`
	APIURL         string         `yaml:"api_url"`
	Target         string         `yaml:"target"`
	Snapshot       string         `yaml:"snapshot"`
	Image          string         `yaml:"image"`
	SandboxClass   string         `yaml:"class"`
	WorkspaceDir   string         `yaml:"workspace_dir"`
	NetworkAllow   string         `yaml:"network_allow_list"`
	ReuseSandbox   bool           `yaml:"reuse_sandbox"`
	AutoStop       *time.Duration `yaml:"auto_stop_interval"`
	AutoArchive    *time.Duration `yaml:"auto_archive_interval"`
	AutoDelete     *time.Duration `yaml:"auto_delete_interval"`
}

// SandboxSnapshotConfig controls Firecracker snapshot behavior.
type SandboxSnapshotConfig struct {
	Enabled         bool          `yaml:"enabled"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	MaxAge          time.Duration `yaml:"max_age"`
}

type ResourceLimits struct {
	MaxCPU    int    `yaml:"max_cpu"`
	MaxMemory string `yaml:"max_memory"`
}

type WebSearchConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Provider    string `yaml:"provider"`
	URL         string `yaml:"url"`
	BraveAPIKey string `yaml:"brave_api_key"`
}

// ToolJobsConfig controls async tool job persistence.
type ToolJobsConfig struct {
	// Retention is how long to keep completed jobs. Default: 24h.
	Retention time.Duration `yaml:"retention"`
	// PruneInterval is how often to prune old jobs. Default: 1h.
	PruneInterval time.Duration `yaml:"prune_interval"`
}

type MemorySearchConfig struct {
	Enabled       bool                         `yaml:"enabled"`
	Directory     string                       `yaml:"directory"`
	MemoryFile    string                       `yaml:"memory_file"`
	MaxResults    int                          `yaml:"max_results"`
	MaxSnippetLen int                          `yaml:"max_snippet_len"`
	Mode          string                       `yaml:"mode"`
	Embeddings    MemorySearchEmbeddingsConfig `yaml:"embeddings"`
}

type MemorySearchEmbeddingsConfig struct {
	Provider string        `yaml:"provider"`
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	Model    string        `yaml:"model"`
	CacheDir string        `yaml:"cache_dir"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Timeout  time.Duration `yaml:"timeout"`
}
