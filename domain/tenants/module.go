package tenants

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/slotwise/slotwise-core/pkg/apperror"
	"github.com/slotwise/slotwise-core/pkg/auth"
)

// Module provides the tenants domain.
var Module = fx.Module("tenants",
	fx.Provide(NewRepository),
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

// Handler handles HTTP requests for tenants.
type Handler struct {
	svc *Service
}

// NewHandler creates a new tenant handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Create creates a workspace for an identity that does not have one.
func (h *Handler) Create(c echo.Context) error {
	principal := auth.GetPrincipal(c)
	if principal.Tenant.ID != "" {
		return apperror.ErrConflict.WithMessage("This account already belongs to a workspace")
	}

	var req CreateTenantRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request body")
	}

	tenant, err := h.svc.Create(c.Request().Context(), req.DisplayName, principal.Identity.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, tenant)
}

// RegisterRoutes registers the tenant routes. Workspace creation only
// needs a verified identity, not an existing tenant.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	e.POST("/api/tenants", h.Create, authMiddleware.RequireIdentity())
}
