// Package directory is the client for the account/credential store.
// The store owns user records and bearer credentials; this service
// only verifies tokens, looks accounts up by email, and asks for new
// accounts to be created.
package directory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/slotwise/slotwise-core/internal/config"
)

// Identity is a verified account in the credential store.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// Directory is the consumed interface of the credential store.
type Directory interface {
	// Verify validates an opaque bearer credential and returns the
	// identity it belongs to. Fails with apperror.ErrInvalidToken
	// for bad or expired credentials.
	Verify(ctx context.Context, token string) (*Identity, error)

	// LookupByEmail returns the account for an email address, or
	// (nil, nil) when no account exists.
	LookupByEmail(ctx context.Context, email string) (*Identity, error)

	// CreateAccount creates a new account with the given password and
	// profile fields.
	CreateAccount(ctx context.Context, email, password, displayName string) (*Identity, error)
}

// Module provides the Directory implementation selected by DIRECTORY_MODE.
var Module = fx.Module("directory",
	fx.Provide(NewDirectory),
	fx.Invoke(RegisterLocalRoutes),
)

// NewDirectory builds the configured Directory implementation.
func NewDirectory(cfg *config.Config, db bun.IDB, log *slog.Logger) (Directory, error) {
	switch cfg.Directory.Mode {
	case "local":
		return NewLocalDirectory(cfg, db, log), nil
	case "oidc":
		return NewOIDCDirectory(cfg, db, log)
	default:
		return nil, fmt.Errorf("unknown directory mode %q", cfg.Directory.Mode)
	}
}
