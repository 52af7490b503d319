package invitations

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/slotwise/slotwise-core/internal/server"
	"github.com/slotwise/slotwise-core/pkg/auth"
	"github.com/slotwise/slotwise-core/pkg/permissions"
)

// Module provides the invitations domain.
var Module = fx.Module("invitations",
	fx.Provide(NewRepository),
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

// RegisterRoutes registers the invitation routes.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware, limiter *server.PublicRateLimiter) {
	g := e.Group("/api/team", authMiddleware.RequireAuth())

	g.GET("/invitations", h.List,
		authMiddleware.RequirePermission(permissions.ResourceTeam, permissions.LevelView))

	full := authMiddleware.RequirePermission(permissions.ResourceTeam, permissions.LevelFull)
	g.POST("/invite", h.Create, full)
	g.DELETE("/invite/:id", h.Cancel, full)
	g.POST("/invite/:id/resend", h.Resend, full)

	pub := e.Group("", limiter.Middleware())
	pub.GET("/api/invitation/:token", h.ValidateByToken)
	pub.GET("/api/invitation/code/:code", h.ValidateByCode)
	pub.POST("/api/join", h.Join)
}
