package skills

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ironclaw/core/internal/kerr"
)

// Loader fetches skill manifests from local files or HTTP(S) URLs.
type Loader struct {
	client *http.Client
	logger *slog.Logger
}

// NewLoader constructs a Loader with a bounded-timeout HTTP client.
func NewLoader() *Loader {
	return &Loader{
		client: &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default().With("component", "skills.loader"),
	}
}

// LoadFromFile reads and parses a manifest from a local path.
func (l *Loader) LoadFromFile(path string) (*LoadedSkill, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, kerr.New(kerr.Validation, "failed to read skill manifest %q: %v", path, err)
	}
	return newLoadedSkill(raw, path)
}

// LoadFromURL fetches and parses a manifest from an HTTP(S) URL. A
// "file://" URL is redirected to LoadFromFile; a GitHub blob URL is
// rewritten to its raw-content equivalent.
func (l *Loader) LoadFromURL(ctx context.Context, rawURL string) (*LoadedSkill, error) {
	if path, ok := strings.CutPrefix(rawURL, "file://"); ok {
		return l.LoadFromFile(path)
	}

	fetchURL := normalizeGitHubURL(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, kerr.New(kerr.Validation, "invalid skill manifest URL %q: %v", fetchURL, err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, kerr.Wrap(kerr.Network, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, kerr.New(kerr.Network, "failed to fetch skill manifest %q: HTTP %d", fetchURL, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, kerr.Wrap(kerr.Network, err)
	}
	return newLoadedSkill(raw, fetchURL)
}

func newLoadedSkill(raw []byte, source string) (*LoadedSkill, error) {
	manifest, err := ParseManifest(raw)
	if err != nil {
		return nil, err
	}
	return &LoadedSkill{
		Manifest:    manifest,
		Source:      source,
		ContentHash: ContentHash(raw),
	}, nil
}

// normalizeGitHubURL rewrites a GitHub blob URL to its raw content
// equivalent; any other URL passes through unchanged.
func normalizeGitHubURL(url string) string {
	if strings.Contains(url, "github.com") && strings.Contains(url, "/blob/") {
		url = strings.ReplaceAll(url, "github.com", "raw.githubusercontent.com")
		url = strings.ReplaceAll(url, "/blob/", "/")
	}
	return url
}
