package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/geocoder89/studentportal/internal/config"
	"github.com/geocoder89/studentportal/internal/domain/user"
)

type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// EnsureAdminUser creates the bootstrap admin from config unless a user with
// that email already exists. Admins cannot sign up through the API.
func EnsureAdminUser(ctx context.Context, store user.Store, hasher PasswordHasher, cfg config.Config) error {
	if !cfg.SeedAdmin() {
		return nil
	}

	_, err := store.FindByEmail(ctx, cfg.AdminEmail)

	if err == nil {
		return nil
	}

	if !errors.Is(err, user.ErrNotFound) {
		return err
	}

	hash, err := hasher.Hash(cfg.AdminPassword)

	if err != nil {
		return err
	}

	u, err := user.NewAdmin(cfg.AdminEmail, cfg.AdminName, hash)
	if err != nil {
		return err
	}

	created, err := store.Create(ctx, u)

	// another instance seeded it first
	if errors.Is(err, user.ErrEmailTaken) {
		return nil
	}
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "admin user seeded", "user_id", created.ID)
	return nil
}
