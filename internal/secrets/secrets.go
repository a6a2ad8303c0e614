// Package secrets implements the encrypted-at-rest credential store of
// spec.md §4.10: create/get/get_decrypted/delete/list over a pluggable
// backend, with ciphertext produced by a single SecretsCrypto instance
// seeded from a master key. Grounded on the teacher's
// internal/identity/store.go clone-on-read in-memory pattern,
// generalized from identity records to encrypted secret values.
package secrets

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ironclaw/core/internal/kerr"
)

// Metadata is everything about a secret except its plaintext value.
type Metadata struct {
	ID         string
	Name       string
	Provider   string
	CreatedAt  time.Time
	ExpiresAt  *time.Time
	UsageCount int64
}

// Plaintext is an ephemeral handle to a decrypted secret value. Callers
// must not retain it past the call frame that obtained it; nothing in
// this package persists a Plaintext or returns one from an accessor
// other than GetDecrypted.
type Plaintext struct {
	value string
}

// Expose returns the underlying plaintext. Named distinctly from a
// plain getter to make call sites grep-able for plaintext handling.
func (p Plaintext) Expose() string { return p.value }

// CreateParams describes a new secret.
type CreateParams struct {
	Name      string
	Value     string
	Provider  string
	ExpiresAt *time.Time
}

// record is the store's internal representation: ciphertext + nonce
// only, never plaintext, per spec.md §4.10.
type record struct {
	meta       Metadata
	ciphertext []byte
	nonce      []byte
}

// Crypto seals and opens secret values. A single instance, seeded from
// a master key resolved via internal/config.ResolveMasterKey, backs
// every Store.
type Crypto interface {
	Seal(plaintext string) (ciphertext, nonce []byte, err error)
	Open(ciphertext, nonce []byte) (string, error)
}

// Store is the backend contract; in-memory, SQLite, and remote-SQL
// implementations all satisfy it.
type Store interface {
	Create(ctx context.Context, userID string, params CreateParams) (Metadata, error)
	Get(ctx context.Context, userID, name string) (Metadata, error)
	GetDecrypted(ctx context.Context, userID, name string) (Plaintext, error)
	Delete(ctx context.Context, userID, name string) error
	List(ctx context.Context, userID string) ([]Metadata, error)
}

// MemoryStore is the in-memory backend used by tests and by the signer
// package's own test suite.
type MemoryStore struct {
	mu     sync.RWMutex
	crypto Crypto
	byUser map[string]map[string]*record // userID -> name -> record
}

// NewMemoryStore constructs a store sealed by crypto.
func NewMemoryStore(crypto Crypto) *MemoryStore {
	return &MemoryStore{crypto: crypto, byUser: make(map[string]map[string]*record)}
}

func (s *MemoryStore) Create(ctx context.Context, userID string, params CreateParams) (Metadata, error) {
	if params.Name == "" {
		return Metadata{}, kerr.New(kerr.Validation, "secret name is required")
	}
	ciphertext, nonce, err := s.crypto.Seal(params.Value)
	if err != nil {
		return Metadata{}, kerr.Wrap(kerr.Storage, err)
	}

	meta := Metadata{
		ID:        uuid.NewString(),
		Name:      params.Name,
		Provider:  params.Provider,
		CreatedAt: time.Now(),
		ExpiresAt: params.ExpiresAt,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byUser[userID] == nil {
		s.byUser[userID] = make(map[string]*record)
	}
	if _, exists := s.byUser[userID][params.Name]; exists {
		return Metadata{}, kerr.New(kerr.AlreadyExists, "secret already exists: %s", params.Name)
	}
	s.byUser[userID][params.Name] = &record{meta: meta, ciphertext: ciphertext, nonce: nonce}
	return meta, nil
}

func (s *MemoryStore) Get(ctx context.Context, userID, name string) (Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.lookup(userID, name)
	if err != nil {
		return Metadata{}, err
	}
	return rec.meta, nil
}

// GetDecrypted decrypts the stored ciphertext into an ephemeral
// Plaintext and increments the monotone usage counter. The plaintext
// value never persists anywhere in this store — only ciphertext+nonce
// are held in `record`.
func (s *MemoryStore) GetDecrypted(ctx context.Context, userID, name string) (Plaintext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookupLocked(userID, name)
	if err != nil {
		return Plaintext{}, err
	}
	plain, err := s.crypto.Open(rec.ciphertext, rec.nonce)
	if err != nil {
		return Plaintext{}, kerr.Wrap(kerr.Storage, err)
	}
	rec.meta.UsageCount++
	return Plaintext{value: plain}, nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byUser[userID]; !ok {
		return kerr.New(kerr.SecretNotFound, "secret not found: %s", name)
	}
	if _, ok := s.byUser[userID][name]; !ok {
		return kerr.New(kerr.SecretNotFound, "secret not found: %s", name)
	}
	delete(s.byUser[userID], name)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, userID string) ([]Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Metadata
	for _, rec := range s.byUser[userID] {
		out = append(out, rec.meta)
	}
	return out, nil
}

func (s *MemoryStore) lookup(userID, name string) (*record, error) {
	users, ok := s.byUser[userID]
	if !ok {
		return nil, kerr.New(kerr.SecretNotFound, "secret not found: %s", name)
	}
	rec, ok := users[name]
	if !ok {
		return nil, kerr.New(kerr.SecretNotFound, "secret not found: %s", name)
	}
	return rec, nil
}

func (s *MemoryStore) lookupLocked(userID, name string) (*record, error) {
	return s.lookup(userID, name)
}
