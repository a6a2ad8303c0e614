package skills

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ironclaw/core/internal/kerr"
)

// Manager owns the registry of loaded skills and their approvals, and
// is the single entry point a turn uses to select and activate skills.
type Manager struct {
	loader *Loader
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	skills    map[string]*LoadedSkill
	approvals map[string]*Approval
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{
		loader:    NewLoader(),
		logger:    slog.Default().With("component", "skills.manager"),
		now:       time.Now,
		skills:    make(map[string]*LoadedSkill),
		approvals: make(map[string]*Approval),
	}
}

// LoadFromFile loads, analyzes, and registers a skill from a local
// path, replacing any existing entry under the same name. A Block
// verdict from static analysis does not prevent registration, only
// activation — callers can still inspect it via Analysis.
func (m *Manager) LoadFromFile(path string) (*LoadedSkill, error) {
	skill, err := m.loader.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	return m.register(skill), nil
}

// LoadFromURL loads, analyzes, and registers a skill from an HTTP(S)
// or file:// URL.
func (m *Manager) LoadFromURL(ctx context.Context, url string) (*LoadedSkill, error) {
	skill, err := m.loader.LoadFromURL(ctx, url)
	if err != nil {
		return nil, err
	}
	return m.register(skill), nil
}

func (m *Manager) register(skill *LoadedSkill) *LoadedSkill {
	skill.Analysis = Analyze(skill.Manifest.Prompt.Content)
	if skill.Analysis.Verdict == VerdictBlock {
		m.logger.Warn("skill blocked by static analysis", "skill", skill.Manifest.Name(), "findings", len(skill.Analysis.Findings))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.approvals[skill.Manifest.Name()]; ok && existing.ContentHash != skill.ContentHash {
		m.logger.Info("skill content changed, approval invalidated", "skill", skill.Manifest.Name())
	}
	m.skills[skill.Manifest.Name()] = skill
	return skill
}

// Get returns a registered skill by name.
func (m *Manager) Get(name string) (*LoadedSkill, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	skill, ok := m.skills[name]
	return skill, ok
}

// List returns all registered skills, sorted by name.
func (m *Manager) List() []*LoadedSkill {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*LoadedSkill, 0, len(m.skills))
	for _, skill := range m.skills {
		result = append(result, skill)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Manifest.Name() < result[j].Manifest.Name() })
	return result
}

// Approve records a user's acceptance of a skill's current content
// hash. A later reload with different content invalidates this.
func (m *Manager) Approve(name, approvedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	skill, ok := m.skills[name]
	if !ok {
		return kerr.New(kerr.NotFound, "skill %q not found", name)
	}
	m.approvals[name] = &Approval{
		SkillName:   name,
		ContentHash: skill.ContentHash,
		ApprovedAt:  m.now(),
		ApprovedBy:  approvedBy,
	}
	return nil
}

// ApprovalFor returns the current approval record for a skill, if any.
func (m *Manager) ApprovalFor(name string) (*Approval, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.approvals[name]
	return a, ok
}

// isApprovedAndSafe reports whether name may be activated: registered,
// not Blocked by static analysis, and currently approved at its
// content hash. Caller must hold m.mu for reading.
func (m *Manager) isApprovedAndSafe(name string) bool {
	skill, ok := m.skills[name]
	if !ok || skill.Analysis.Verdict == VerdictBlock {
		return false
	}
	approval, ok := m.approvals[name]
	return ok && approval.Valid(skill)
}

// SelectForTurn runs the deterministic prefilter over every approved,
// non-blocked skill and returns activation state for each selected
// skill, ready to bound tool execution for this turn.
func (m *Manager) SelectForTurn(message string, maxCandidates, maxContextTokens int) []*ActiveSkill {
	m.mu.RLock()
	candidates := make([]*LoadedSkill, 0, len(m.skills))
	for name, skill := range m.skills {
		if m.isApprovedAndSafe(name) {
			candidates = append(candidates, skill)
		}
	}
	m.mu.RUnlock()

	selected := Prefilter(message, candidates, maxCandidates, maxContextTokens)
	active := make([]*ActiveSkill, 0, len(selected))
	for _, skill := range selected {
		active = append(active, Activate(skill))
	}
	return active
}

// ActivateByCommand resolves the skill bound to a slash command, if
// any, and activates it directly, bypassing the scoring prefilter.
func (m *Manager) ActivateByCommand(command string) (*ActiveSkill, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, skill := range m.skills {
		cmd, ok := skill.Manifest.Command()
		if ok && cmd == command && m.isApprovedAndSafe(name) {
			return Activate(skill), true
		}
	}
	return nil, false
}
