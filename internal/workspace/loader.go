package workspace

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/ironclaw/core/internal/kerr"
)

// WorkspaceContext holds all loaded workspace data for runtime use,
// sourced from a Facade's primary layer instead of flat files, so the
// same identity/soul/memory documents participate in privacy
// redirection and hybrid search like any other workspace content.
type WorkspaceContext struct {
	AgentsContent   string
	SoulContent     string
	UserContent     string
	IdentityContent string
	ToolsContent    string
	MemoryContent   string

	Identity *Identity
	User     *UserProfile
}

// Identity holds parsed agent identity from the identity document.
type Identity struct {
	Name     string
	Creature string
	Vibe     string
	Emoji    string
}

// UserProfile holds parsed user profile from the user document.
type UserProfile struct {
	Name             string
	PreferredAddress string
	Pronouns         string
	Timezone         string
	Notes            string
}

// LoaderPaths names the well-known workspace document paths the loader
// assembles a WorkspaceContext from.
type LoaderPaths struct {
	Agents   string
	Soul     string
	User     string
	Identity string
	Tools    string
	Memory   string
}

// DefaultLoaderPaths matches the teacher's default filenames, now read
// as workspace document paths rather than files on disk.
func DefaultLoaderPaths() LoaderPaths {
	return LoaderPaths{
		Agents:   "AGENTS.md",
		Soul:     "SOUL.md",
		User:     "USER.md",
		Identity: "IDENTITY.md",
		Tools:    "TOOLS.md",
		Memory:   "MEMORY.md",
	}
}

// LoadWorkspace reads every well-known document from the facade,
// tolerating NotFound for any of them, and parses the structured ones.
func LoadWorkspace(ctx context.Context, f *Facade, paths LoaderPaths) (*WorkspaceContext, error) {
	wc := &WorkspaceContext{}
	loadOptional := func(path string) (string, error) {
		doc, err := f.Read(ctx, path)
		if err != nil {
			if kerr.Has(err, kerr.NotFound) {
				return "", nil
			}
			return "", err
		}
		return doc.Content, nil
	}

	var err error
	if wc.AgentsContent, err = loadOptional(paths.Agents); err != nil {
		return nil, err
	}
	if wc.SoulContent, err = loadOptional(paths.Soul); err != nil {
		return nil, err
	}
	if wc.UserContent, err = loadOptional(paths.User); err != nil {
		return nil, err
	}
	if wc.IdentityContent, err = loadOptional(paths.Identity); err != nil {
		return nil, err
	}
	if wc.ToolsContent, err = loadOptional(paths.Tools); err != nil {
		return nil, err
	}
	if wc.MemoryContent, err = loadOptional(paths.Memory); err != nil {
		return nil, err
	}

	if wc.IdentityContent != "" {
		wc.Identity = parseIdentity(wc.IdentityContent)
	}
	if wc.UserContent != "" {
		wc.User = parseUserProfile(wc.UserContent)
	}
	return wc, nil
}

// SystemPromptContext generates context to inject into system prompts.
func (w *WorkspaceContext) SystemPromptContext() string {
	var parts []string

	if w.SoulContent != "" {
		parts = append(parts, w.SoulContent)
	}

	if w.Identity != nil && w.Identity.Name != "" {
		parts = append(parts, fmt.Sprintf("Your name is %s.", w.Identity.Name))
		if w.Identity.Creature != "" {
			parts = append(parts, fmt.Sprintf("You are a %s.", w.Identity.Creature))
		}
		if w.Identity.Vibe != "" {
			parts = append(parts, fmt.Sprintf("Your vibe is %s.", w.Identity.Vibe))
		}
		if w.Identity.Emoji != "" {
			parts = append(parts, fmt.Sprintf("Your emoji is %s.", w.Identity.Emoji))
		}
	}

	if w.User != nil && w.User.Name != "" {
		addr := w.User.PreferredAddress
		if addr == "" {
			addr = w.User.Name
		}
		parts = append(parts, fmt.Sprintf("You are talking to %s (address them as %s).", w.User.Name, addr))
		if w.User.Timezone != "" {
			parts = append(parts, fmt.Sprintf("Their timezone is %s.", w.User.Timezone))
		}
	}

	return strings.Join(parts, "\n")
}

// parseIdentity parses the identity document's "- Key: Value" format.
func parseIdentity(content string) *Identity {
	id := &Identity{}
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if key, val := parseKeyValue(line); key != "" {
			switch strings.ToLower(key) {
			case "name":
				id.Name = val
			case "creature":
				id.Creature = val
			case "vibe":
				id.Vibe = val
			case "emoji":
				id.Emoji = val
			}
		}
	}
	return id
}

// parseUserProfile parses the user document's "- Key: Value" format.
func parseUserProfile(content string) *UserProfile {
	user := &UserProfile{}
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if key, val := parseKeyValue(line); key != "" {
			switch strings.ToLower(key) {
			case "name":
				user.Name = val
			case "preferred address":
				user.PreferredAddress = val
			case "pronouns", "pronouns (optional)":
				user.Pronouns = val
			case "timezone", "timezone (optional)":
				user.Timezone = val
			case "notes":
				user.Notes = val
			}
		}
	}
	return user
}

// parseKeyValue extracts key-value from lines like "- Key: Value".
func parseKeyValue(line string) (string, string) {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "-")
	line = strings.TrimSpace(line)

	idx := strings.Index(line, ":")
	if idx == -1 {
		return "", ""
	}

	key := strings.TrimSpace(line[:idx])
	val := strings.TrimSpace(line[idx+1:])
	return key, val
}
