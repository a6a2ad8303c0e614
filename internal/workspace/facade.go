package workspace

import (
	"context"
	"sort"
	"strings"

	"github.com/ironclaw/core/internal/docstore"
	"github.com/ironclaw/core/internal/kerr"
	"github.com/ironclaw/core/internal/search"
)

// Sensitivity classifies a layer's handling of sensitive content.
type Sensitivity string

const (
	SensitivityShared  Sensitivity = "shared"
	SensitivityPrivate Sensitivity = "private"
)

// Layer is one named scope in a workspace's ordered layer list.
type Layer struct {
	Name        string
	Scope       string // docstore scope backing this layer
	Sensitivity Sensitivity
	Writable    bool
}

// Facade implements spec.md §4.3's layered-memory workspace contract on
// top of internal/docstore, replacing the teacher's flat-file loader
// with scope-per-layer document storage while keeping its notion of a
// primary layer whose content is authoritative on read collisions.
type Facade struct {
	store      *docstore.Store
	engine     *search.Engine
	layers     []Layer // ordered; index 0 is primary for read precedence
	classifier PrivacyClassifier
}

// NewFacade constructs a Facade over an ordered layer list. The first
// layer is primary for reads and for write() without an explicit layer
// name.
func NewFacade(store *docstore.Store, engine *search.Engine, layers []Layer, classifier PrivacyClassifier) *Facade {
	if classifier == nil {
		classifier = NewDefaultClassifier()
	}
	return &Facade{store: store, engine: engine, layers: layers, classifier: classifier}
}

func (f *Facade) primary() (Layer, bool) {
	if len(f.layers) == 0 {
		return Layer{}, false
	}
	return f.layers[0], true
}

func (f *Facade) layerByName(name string) (Layer, bool) {
	for _, l := range f.layers {
		if l.Name == name {
			return l, true
		}
	}
	return Layer{}, false
}

func (f *Facade) firstWritablePrivate() (Layer, bool) {
	for _, l := range f.layers {
		if l.Writable && l.Sensitivity == SensitivityPrivate {
			return l, true
		}
	}
	return Layer{}, false
}

// WriteResult reports where a write actually landed after privacy
// redirection.
type WriteResult struct {
	Document    *docstore.Document
	ActualLayer string
	Redirected  bool
}

// Write targets the primary layer.
func (f *Facade) Write(ctx context.Context, path, content string) (*WriteResult, error) {
	primary, ok := f.primary()
	if !ok {
		return nil, kerr.New(kerr.Validation, "workspace has no layers configured")
	}
	return f.WriteToLayer(ctx, primary.Name, path, content)
}

// WriteToLayer writes to the named layer, applying privacy redirection
// when the target layer's sensitivity is shared and the classifier
// flags the content. A write never spans two scopes: redirection picks
// exactly one target before the single underlying Put.
func (f *Facade) WriteToLayer(ctx context.Context, name, path, content string) (*WriteResult, error) {
	layer, ok := f.layerByName(name)
	if !ok {
		return nil, kerr.New(kerr.Validation, "unknown layer: %s", name).WithField("kind", "UnknownLayer")
	}
	if !layer.Writable {
		return nil, kerr.New(kerr.Validation, "layer is read-only: %s", name).WithField("kind", "ReadOnlyLayer")
	}

	target := layer
	redirected := false
	if layer.Sensitivity == SensitivityShared && f.classifier.IsSensitive(content) {
		private, ok := f.firstWritablePrivate()
		if !ok {
			return nil, kerr.New(kerr.NoPrivateLayerForRedirect, "content classified sensitive but no writable private layer exists")
		}
		target = private
		redirected = true
	}

	doc, err := f.store.Put(ctx, target.Scope, path, content)
	if err != nil {
		return nil, err
	}
	return &WriteResult{Document: doc, ActualLayer: target.Name, Redirected: redirected}, nil
}

// AppendToLayer applies the privacy check only to the appended fragment,
// per spec.md §4.3, then writes old + "\n\n" + new as a single Put.
func (f *Facade) AppendToLayer(ctx context.Context, name, path, fragment string) (*WriteResult, error) {
	layer, ok := f.layerByName(name)
	if !ok {
		return nil, kerr.New(kerr.Validation, "unknown layer: %s", name).WithField("kind", "UnknownLayer")
	}
	if !layer.Writable {
		return nil, kerr.New(kerr.Validation, "layer is read-only: %s", name).WithField("kind", "ReadOnlyLayer")
	}

	target := layer
	redirected := false
	if layer.Sensitivity == SensitivityShared && f.classifier.IsSensitive(fragment) {
		private, ok := f.firstWritablePrivate()
		if !ok {
			return nil, kerr.New(kerr.NoPrivateLayerForRedirect, "appended content classified sensitive but no writable private layer exists")
		}
		target = private
		redirected = true
	}

	existing, err := f.store.Get(ctx, target.Scope, path)
	var merged string
	if err != nil {
		if !kerr.Has(err, kerr.NotFound) {
			return nil, err
		}
		merged = fragment
	} else {
		merged = existing.Content + "\n\n" + fragment
	}

	doc, err := f.store.Put(ctx, target.Scope, path, merged)
	if err != nil {
		return nil, err
	}
	return &WriteResult{Document: doc, ActualLayer: target.Name, Redirected: redirected}, nil
}

// Read consults scopes in order: primary first, then additional layers,
// returning the first hit.
func (f *Facade) Read(ctx context.Context, path string) (*docstore.Document, error) {
	var lastErr error
	for _, l := range f.layers {
		doc, err := f.store.Get(ctx, l.Scope, path)
		if err == nil {
			return doc, nil
		}
		if !kerr.Has(err, kerr.NotFound) {
			return nil, err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = kerr.New(kerr.NotFound, "path not found in any layer: %s", path)
	}
	return nil, lastErr
}

// Exists reports whether path resolves in any layer.
func (f *Facade) Exists(ctx context.Context, path string) bool {
	_, err := f.Read(ctx, path)
	return err == nil
}

// List returns the union of paths with the given prefix across all
// layers, de-duplicated, primary-scope content winning on collision.
// Path ordering within the union is lexical.
func (f *Facade) List(ctx context.Context, prefix string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	prefix = trimmedPrefix(prefix)
	for _, l := range f.layers {
		paths, err := f.store.List(ctx, l.Scope, prefix)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ListAll returns every path across every layer (prefix "").
func (f *Facade) ListAll(ctx context.Context) ([]string, error) {
	return f.List(ctx, "")
}

// Search runs hybrid search across every layer's scope.
func (f *Facade) Search(ctx context.Context, query string, limit int) ([]search.ScoredChunk, error) {
	scopes := make([]string, len(f.layers))
	for i, l := range f.layers {
		scopes[i] = l.Scope
	}
	cfg := search.DefaultConfig()
	cfg.Limit = limit
	cfg.Mode = search.ModeFTSOnly
	return f.engine.HybridSearch(ctx, scopes, query, nil, cfg)
}

// trimmedPrefix normalizes a list prefix the same way docstore paths
// are normalized, tolerating a leading slash typed by a human caller.
func trimmedPrefix(p string) string {
	return strings.TrimPrefix(p, "/")
}
