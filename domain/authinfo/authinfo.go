// Package authinfo exposes the caller's resolved workspace context.
package authinfo

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/slotwise/slotwise-core/pkg/auth"
)

// MeResponse describes who the caller is within their workspace.
type MeResponse struct {
	UserID         string `json:"userId"`
	Email          string `json:"email"`
	TenantID       string `json:"tenantId"`
	TenantName     string `json:"tenantName"`
	Role           string `json:"role"`
	IsOwner        bool   `json:"isOwner"`
	MaxTeamMembers int    `json:"maxTeamMembers"`
}

// Handler serves the identity endpoint.
type Handler struct{}

// NewHandler creates a new authinfo handler.
func NewHandler() *Handler {
	return &Handler{}
}

// Me handles GET /api/me
func (h *Handler) Me(c echo.Context) error {
	p := auth.GetPrincipal(c)
	return c.JSON(http.StatusOK, MeResponse{
		UserID:         p.Identity.ID,
		Email:          p.Identity.Email,
		TenantID:       p.Tenant.ID,
		TenantName:     p.Tenant.DisplayName,
		Role:           p.Role.Slug,
		IsOwner:        p.IsOwner,
		MaxTeamMembers: p.Tenant.MaxTeamMembers,
	})
}

// RegisterRoutes registers the identity route.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	e.GET("/api/me", h.Me, authMiddleware.RequireAuth())
}

// Module provides the authinfo domain.
var Module = fx.Module("authinfo",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
