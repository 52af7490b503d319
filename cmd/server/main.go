// Package main provides the entry point for the Slotwise core API
// server: tenant access control, team membership, and invitations.
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/slotwise/slotwise-core/domain/authinfo"
	"github.com/slotwise/slotwise-core/domain/health"
	"github.com/slotwise/slotwise-core/domain/invitations"
	"github.com/slotwise/slotwise-core/domain/members"
	"github.com/slotwise/slotwise-core/domain/notifications"
	"github.com/slotwise/slotwise-core/domain/roles"
	"github.com/slotwise/slotwise-core/domain/scheduler"
	"github.com/slotwise/slotwise-core/domain/tenants"
	"github.com/slotwise/slotwise-core/internal/config"
	"github.com/slotwise/slotwise-core/internal/database"
	"github.com/slotwise/slotwise-core/internal/server"
	"github.com/slotwise/slotwise-core/pkg/auth"
	"github.com/slotwise/slotwise-core/pkg/directory"
	"github.com/slotwise/slotwise-core/pkg/logger"
)

func main() {
	// Load .env files if present (for local development). Load() won't
	// overwrite existing vars, Overload() will.
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		config.TracingModule,
		database.Module,
		database.MigrateModule,
		server.Module,

		// Identity modules
		directory.Module,
		auth.Module,

		// Domain modules
		health.Module,
		authinfo.Module,
		tenants.Module,
		roles.Module,
		members.Module,
		invitations.Module,
		notifications.Module,
		scheduler.Module,
	).Run()
}
