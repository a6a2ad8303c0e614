package skills

import (
	"strings"
	"sync"

	"github.com/ironclaw/core/internal/kerr"
)

// ActiveSkill is a skill's runtime state for the duration it is
// active in a conversation: the remaining tool-call budget and the
// resolved permission set it enforces against.
type ActiveSkill struct {
	Skill *LoadedSkill

	mu        sync.Mutex
	remaining *uint32 // nil => unbounded
	calls     uint32
}

// Activate starts tracking skill's budget for one conversation.
func Activate(skill *LoadedSkill) *ActiveSkill {
	var remaining *uint32
	if skill.Manifest.Permissions.MaxToolCalls != nil {
		v := *skill.Manifest.Permissions.MaxToolCalls
		remaining = &v
	}
	return &ActiveSkill{Skill: skill, remaining: remaining}
}

// EffectiveTools intersects the caller's registered tools with the
// skill's tool whitelist. An empty whitelist means "no restriction":
// the caller's own tool set passes through unchanged.
func (a *ActiveSkill) EffectiveTools(registered []string) []string {
	whitelist := a.Skill.Manifest.Permissions.Tools
	if len(whitelist) == 0 {
		return registered
	}
	allowed := toSet(whitelist)
	out := make([]string, 0, len(registered))
	for _, name := range registered {
		if allowed[name] {
			out = append(out, name)
		}
	}
	return out
}

// DomainAllowed reports whether host is reachable under this skill's
// domain restriction. An empty domain list means unrestricted.
func (a *ActiveSkill) DomainAllowed(host string) bool {
	domains := a.Skill.Manifest.Permissions.Domains
	if len(domains) == 0 {
		return true
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSuffix(d, "."))
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// WorkspaceReadAllowed reports whether path is reachable under this
// skill's workspace-read prefix list. An empty list means unrestricted.
func (a *ActiveSkill) WorkspaceReadAllowed(path string) bool {
	prefixes := a.Skill.Manifest.Permissions.WorkspaceRead
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// ConsumeToolCall decrements the remaining tool-call budget by one. It
// returns kerr.BudgetExhausted once the budget reaches zero; a skill
// with no declared max_tool_calls is never budget-limited.
func (a *ActiveSkill) ConsumeToolCall() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.remaining == nil {
		a.calls++
		return nil
	}
	if *a.remaining == 0 {
		return kerr.New(kerr.BudgetExhausted, "tool call budget exhausted for skill %q (max %d)",
			a.Skill.Manifest.Name(), *a.Skill.Manifest.Permissions.MaxToolCalls)
	}
	*a.remaining--
	a.calls++
	return nil
}

// CallCount returns the number of tool calls made so far.
func (a *ActiveSkill) CallCount() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
