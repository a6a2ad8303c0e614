// Package main provides the CLI entry point for ironclawd, the
// personal AI-agent runtime's server process.
//
// ironclawd runs the bounded agentic reasoning loop behind an
// OpenAI-compatible HTTP surface, backed by layered memory, a
// capability-checked tool sandbox, and the secrets/signing core.
//
// # Basic Usage
//
// Start the server:
//
//	ironclawd serve --config ironclawd.yaml
//
// Apply pending database migrations:
//
//	ironclawd migrate
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ironclaw/core/internal/agent"
	"github.com/ironclaw/core/internal/agent/instrumentedllm"
	"github.com/ironclaw/core/internal/agent/providers"
	"github.com/ironclaw/core/internal/audit"
	"github.com/ironclaw/core/internal/config"
	"github.com/ironclaw/core/internal/gateway/openaicompat"
	"github.com/ironclaw/core/internal/keys"
	"github.com/ironclaw/core/internal/lifecycle"
	"github.com/ironclaw/core/internal/observability"
	"github.com/ironclaw/core/internal/ratelimit"
	"github.com/ironclaw/core/internal/secrets"
	"github.com/ironclaw/core/internal/sessions"
	"github.com/ironclaw/core/internal/skills"
	"github.com/ironclaw/core/internal/storage"
	"github.com/ironclaw/core/internal/toolpolicy"

	"net/http"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ironclawd",
		Short:        "ironclawd - personal AI-agent runtime",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd(), buildMigrateCmd())
	return root
}

func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("IRONCLAWD_CONFIG"); env != "" {
		return env
	}
	return "ironclawd.yaml"
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ironclawd agent server",
		Long: `Start the ironclawd agent server.

The server loads configuration, constructs the reasoning loop (LLM
provider, tool registry, approval checker, rate limiter, session
store, audit trail), and serves an OpenAI-compatible HTTP endpoint.

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	slog.Info("starting ironclawd", "version", version, "commit", commit, "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	provider, turn, auditLogger, tracerShutdown, err := buildRuntime(cfg)
	if err != nil {
		return fmt.Errorf("failed to build agent runtime: %w", err)
	}
	defer func() {
		if auditLogger != nil {
			_ = auditLogger.Close()
		}
	}()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The raw OpenAI-compatible surface is a stateless passthrough to
	// the provider (no tools, no sessions, no approvals) for clients
	// that just want chat completions. /v1/turns below is the real
	// agentic entrypoint: it drives the full bounded reasoning loop.
	handler := openaicompat.NewHandler(provider, slog.Default())
	if cfg.Server.RateLimit.Enabled {
		handler.SetRateLimiter(ratelimit.NewLimiter(cfg.Server.RateLimit))
	}

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.HandleFunc("POST /v1/turns", newTurnHandler(turn))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	srv := &http.Server{Addr: addr, Handler: mux}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("ironclawd listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, initiating graceful shutdown")
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
	if tracerShutdown != nil {
		_ = tracerShutdown(shutdownCtx)
	}

	slog.Info("ironclawd stopped gracefully")
	return nil
}

// turnRequest is the body of POST /v1/turns: one bounded agentic turn
// against agentID/sessionID's running conversation.
type turnRequest struct {
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// turnResponse collects a turn's streamed chunks into a single response.
// Streaming to the caller is left for a future revision of this
// endpoint; the agentic loop itself already streams internally.
type turnResponse struct {
	Text              string `json:"text,omitempty"`
	Suspended         bool   `json:"suspended,omitempty"`
	PendingApprovalID string `json:"pending_approval_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

func newTurnHandler(turn *agent.Turn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req turnRequest
		if err := jsonDecode(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.AgentID == "" {
			req.AgentID = "default"
		}
		if req.SessionID == "" {
			req.SessionID = req.AgentID
		}

		resp := turnResponse{}
		for chunk := range turn.Run(r.Context(), req.AgentID, req.SessionID, req.Message) {
			if chunk.Error != nil {
				resp.Error = chunk.Error.Error()
				continue
			}
			if chunk.Text != "" {
				resp.Text += chunk.Text
			}
		}
		jsonWrite(w, http.StatusOK, resp)
	}
}

func jsonDecode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func jsonWrite(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// buildRuntime wires the raw LLM provider plus a full agent.Turn from
// cfg: tool registry (native tools plus the signing tool when a
// signing key is configured), lifecycle dispatcher, skills manager,
// approval checker, per-tool rate limiter, session store, and audit
// logger.
func buildRuntime(cfg *config.Config) (agent.LLMProvider, *agent.Turn, *audit.Logger, func(context.Context) error, error) {
	rawProvider, err := buildProvider(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	provider := instrumentedllm.Wrap(rawProvider)

	registry := agent.NewToolRegistry()
	wireSigningTool(registry, cfg)

	dispatcher := lifecycle.NewDispatcher()

	skillMgr := skills.NewManager()
	for _, source := range cfg.Skills.Sources {
		if isURLSource(source) {
			if _, err := skillMgr.LoadFromURL(context.Background(), source); err != nil {
				slog.Warn("failed to load skill from URL", "source", source, "error", err)
			}
			continue
		}
		if _, err := skillMgr.LoadFromFile(source); err != nil {
			slog.Warn("failed to load skill from file", "source", source, "error", err)
		}
	}

	approvals := agent.NewApprovalChecker(approvalPolicyFromConfig(cfg.Tools.Execution.Approval))
	approvals.SetStore(agent.NewMemoryApprovalStore())

	limiter := toolpolicy.NewRateLimiter(toolBudgetsFromConfig(cfg))

	store, err := buildSessionStore(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	loopCfg := agent.DefaultLoopConfig()
	if cfg.Skills.MaxCandidates > 0 {
		loopCfg.MaxSkillCandidates = cfg.Skills.MaxCandidates
	}
	if cfg.Skills.MaxContextTokens > 0 {
		loopCfg.MaxSkillContextTokens = cfg.Skills.MaxContextTokens
	}
	if cfg.Tools.Execution.MaxIterations > 0 {
		loopCfg.MaxIterations = cfg.Tools.Execution.MaxIterations
	}
	if cfg.Tools.Execution.MaxToolCalls > 0 {
		loopCfg.MaxToolCallsPerIteration = cfg.Tools.Execution.MaxToolCalls
	}

	turn := agent.NewTurn(provider, registry, dispatcher, skillMgr, approvals, limiter, store, loopCfg)

	auditLogger, err := audit.NewLogger(cfg.Observability.Audit)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("build audit logger: %w", err)
	}
	turn.SetAuditLogger(auditLogger)

	var tracerShutdown func(context.Context) error
	if cfg.Observability.Tracing.Enabled {
		_, shutdown := observability.NewTracer(observability.TraceConfig{
			ServiceName:    cfg.Observability.Tracing.ServiceName,
			ServiceVersion: cfg.Observability.Tracing.ServiceVersion,
			Environment:    cfg.Observability.Tracing.Environment,
			Endpoint:       cfg.Observability.Tracing.Endpoint,
		})
		tracerShutdown = shutdown
	}

	return provider, turn, auditLogger, tracerShutdown, nil
}

func isURLSource(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// wireSigningTool registers the secrets/signing core's sign_transfer
// tool when a signing key is configured. A runtime without a
// configured key simply doesn't expose value-transfer capability.
func wireSigningTool(registry *agent.ToolRegistry, cfg *config.Config) {
	if cfg.User.Name == "" {
		return
	}
	crypto, err := secrets.NewAESGCMCrypto(masterKeyFromEnv())
	if err != nil {
		slog.Warn("signing tool disabled: failed to initialize secrets crypto", "error", err)
		return
	}
	store := secrets.NewMemoryStore(crypto)
	tracker := keys.NewSpendTracker()
	auditLog := keys.NewAuditLogger(os.Stderr, true)
	policy := keys.NewTransferPolicy(tracker, auditLog, dailySpendLimitYocto(cfg))
	registry.Register(agent.NewTransferSigningTool(store, policy, cfg.User.Name, "default"))
}

func dailySpendLimitYocto(cfg *config.Config) string {
	if cfg.User.DailySpendLimitYocto != "" {
		return cfg.User.DailySpendLimitYocto
	}
	return "0"
}

func masterKeyFromEnv() string {
	return os.Getenv("IRONCLAWD_MASTER_KEY")
}

func approvalPolicyFromConfig(cfg config.ApprovalConfig) *agent.ApprovalPolicy {
	policy := agent.DefaultApprovalPolicy()
	if len(cfg.Allowlist) > 0 {
		policy.Allowlist = cfg.Allowlist
	}
	if len(cfg.Denylist) > 0 {
		policy.Denylist = cfg.Denylist
	}
	if len(cfg.SafeBins) > 0 {
		policy.SafeBins = cfg.SafeBins
	}
	if cfg.SkillAllowlist != nil {
		policy.SkillAllowlist = *cfg.SkillAllowlist
	}
	if cfg.AskFallback != nil {
		policy.AskFallback = *cfg.AskFallback
	}
	if cfg.DefaultDecision != "" {
		policy.DefaultDecision = agent.ApprovalDecision(cfg.DefaultDecision)
	}
	if cfg.RequestTTL > 0 {
		policy.RequestTTL = cfg.RequestTTL
	}
	return policy
}

func toolBudgetsFromConfig(cfg *config.Config) map[string]toolpolicy.Budget {
	budgets := make(map[string]toolpolicy.Budget, len(cfg.Tools.Policies.Rules))
	for _, rule := range cfg.Tools.Policies.Rules {
		if rule.Action == "deny" {
			budgets[rule.Tool] = toolpolicy.Budget{PerMinute: 0, PerHour: 0}
		}
	}
	return budgets
}

func buildProvider(cfg *config.Config) (agent.LLMProvider, error) {
	name := cfg.LLM.DefaultProvider
	if name == "" {
		name = "anthropic"
	}
	pc, ok := cfg.LLM.Providers[name]
	if !ok {
		return nil, fmt.Errorf("no configuration for default_provider %q", name)
	}

	switch name {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:  pc.APIKey,
			BaseURL: pc.BaseURL,
		})
	case "openai":
		return providers.NewOpenAIProvider(pc.APIKey), nil
	case "google":
		return providers.NewGoogleProvider(providers.GoogleConfig{
			APIKey: pc.APIKey,
		})
	case "ollama":
		return providers.NewOllamaProvider(providers.OllamaConfig{
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", name)
	}
}

func buildSessionStore(cfg *config.Config) (sessions.Store, error) {
	if cfg.Database.URL == "" {
		return sessions.NewMemoryStore(), nil
	}
	store, err := sessions.NewCockroachStoreFromDSN(cfg.Database.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	return store, nil
}

func buildMigrateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations for all stores",
		Long: `Open every configured store (sessions, document storage, webhook
dedup) so each one creates or upgrades its schema, then exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runMigrate(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Database.URL == "" {
		slog.Info("no database.url configured; nothing to migrate")
		return nil
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	migrator, err := sessions.NewMigrator(db)
	if err != nil {
		return fmt.Errorf("initialize session migrator: %w", err)
	}
	applied, err := migrator.Up(ctx, 0)
	if err != nil {
		return fmt.Errorf("apply session migrations: %w", err)
	}
	slog.Info("session store migrated", "applied", len(applied))

	if _, err := storage.NewCockroachStoresFromDSN(cfg.Database.URL, nil); err != nil {
		return fmt.Errorf("initialize agent/channel/user stores: %w", err)
	}
	slog.Info("agent/channel/user stores migrated")

	dedupPath := cfg.Workspace.Path + "/webhook-dedup.db"
	dedup, err := storage.OpenSQLiteWebhookDedupStore(dedupPath)
	if err != nil {
		return fmt.Errorf("initialize webhook dedup store: %w", err)
	}
	defer dedup.Close()
	slog.Info("webhook dedup store migrated", "path", dedupPath)

	return nil
}
