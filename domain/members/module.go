package members

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/slotwise/slotwise-core/internal/server"
	"github.com/slotwise/slotwise-core/pkg/auth"
	"github.com/slotwise/slotwise-core/pkg/permissions"
)

// Module provides the members domain.
var Module = fx.Module("members",
	fx.Provide(NewRepository),
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

// RegisterRoutes registers the team roster and password-setup routes.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware, limiter *server.PublicRateLimiter) {
	g := e.Group("/api/team", authMiddleware.RequireAuth())

	g.GET("", h.List,
		authMiddleware.RequirePermission(permissions.ResourceTeam, permissions.LevelView))

	full := authMiddleware.RequirePermission(permissions.ResourceTeam, permissions.LevelFull)
	g.POST("", h.Add, full)
	g.POST("/:id/send-notification", h.SendNotification, full)
	g.DELETE("/:id", h.Remove, full)
	g.PATCH("/:id", h.ChangeRole, full)

	// Setup tokens are bearer secrets; the limiter slows enumeration.
	pub := e.Group("/api/team/setup", limiter.Middleware())
	pub.GET("/:token", h.ValidateSetup)
	pub.POST("/:token", h.CompleteSetup)
}
