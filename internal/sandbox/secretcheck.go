package sandbox

import (
	"context"

	"github.com/ironclaw/core/internal/secrets"
)

// storeSecretChecker adapts secrets.Store to SecretChecker, exposing
// existence only — never a decrypted value — to guests.
type storeSecretChecker struct {
	store secrets.Store
}

// NewSecretChecker wraps store so a guest's secret_exists capability
// never has access to anything but a boolean.
func NewSecretChecker(store secrets.Store) SecretChecker {
	return storeSecretChecker{store: store}
}

func (c storeSecretChecker) Exists(ctx context.Context, userID, name string) bool {
	_, err := c.store.Get(ctx, userID, name)
	return err == nil
}
