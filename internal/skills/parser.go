package skills

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/pelletier/go-toml"

	"github.com/ironclaw/core/internal/kerr"
)

// ParseManifest parses and validates raw TOML skill content. An empty
// activation mode defaults to ActivationExplicit; a name-unsafe or
// empty name, an empty prompt, or activation=="command" without a
// command field are all parse errors.
func ParseManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(raw, &m); err != nil {
		return nil, kerr.New(kerr.Validation, "failed to parse skill manifest: %v", err)
	}
	if m.Skill.Activation == "" {
		m.Skill.Activation = ActivationExplicit
	}
	if err := validateManifest(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func validateManifest(m *Manifest) error {
	if m.Skill.Name == "" {
		return kerr.New(kerr.Validation, "skill name cannot be empty")
	}
	if !isSafeName(m.Skill.Name) {
		return kerr.New(kerr.Validation, "skill name %q must contain only alphanumeric characters, hyphens, and underscores", m.Skill.Name)
	}
	if m.Skill.Version == "" {
		return kerr.New(kerr.Validation, "skill %q: version cannot be empty", m.Skill.Name)
	}
	if strings.TrimSpace(m.Prompt.Content) == "" {
		return kerr.New(kerr.Validation, "skill %q: prompt content cannot be empty", m.Skill.Name)
	}
	if m.Skill.Activation == ActivationCommand && m.Skill.Command == "" {
		return kerr.New(kerr.Validation, "skill %q: activation=\"command\" requires a command field", m.Skill.Name)
	}
	return nil
}

func isSafeName(name string) bool {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// ContentHash returns the hex-encoded sha256 of raw manifest bytes,
// the value an Approval pins.
func ContentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
