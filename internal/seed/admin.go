// Package seed populates a fresh database with its initial data.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"apotek/m/domain"
	"apotek/m/internal/store"
)

// EnsureAdmin creates the administrator account unless the username is
// already taken. Existing credentials are never overwritten.
func EnsureAdmin(ctx context.Context, accounts *store.Accounts, username, password string, log zerolog.Logger) error {
	_, err := accounts.GetByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("look up admin: %w", err)
	}

	acc, err := accounts.Create(ctx, username, domain.RoleAdmin, password)
	if errors.Is(err, store.ErrDuplicateUsername) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	log.Info().Int64("account_id", acc.ID).Str("username", acc.Username).Msg("seeded admin account")
	return nil
}
