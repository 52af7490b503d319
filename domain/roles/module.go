package roles

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/slotwise/slotwise-core/pkg/auth"
	"github.com/slotwise/slotwise-core/pkg/permissions"
)

// Module provides the roles domain.
var Module = fx.Module("roles",
	fx.Provide(NewRepository),
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

// RegisterRoutes registers the role routes.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/roles", authMiddleware.RequireAuth())

	g.GET("", h.List,
		authMiddleware.RequirePermission(permissions.ResourceSettings, permissions.LevelView))

	full := authMiddleware.RequirePermission(permissions.ResourceSettings, permissions.LevelFull)
	g.POST("", h.Create, full)
	g.PATCH("/:id", h.Update, full)
	g.POST("/:id/duplicate", h.Duplicate, full)
	g.POST("/:id/default", h.SetDefault, full)
	g.DELETE("/:id", h.Delete, full)
}
