package roles

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/slotwise/slotwise-core/pkg/apperror"
	"github.com/slotwise/slotwise-core/pkg/auth"
)

// Handler handles HTTP requests for roles.
type Handler struct {
	svc *Service
}

// NewHandler creates a new role handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List returns all roles for the caller's tenant.
func (h *Handler) List(c echo.Context) error {
	principal := auth.GetPrincipal(c)

	list, err := h.svc.List(c.Request().Context(), principal.Tenant.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

// Create adds a custom role.
func (h *Handler) Create(c echo.Context) error {
	principal := auth.GetPrincipal(c)

	var req CreateRoleRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request body")
	}

	role, err := h.svc.Create(c.Request().Context(), principal.Tenant.ID, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, role)
}

// Update renames a role or replaces its permissions.
func (h *Handler) Update(c echo.Context) error {
	principal := auth.GetPrincipal(c)

	var req UpdateRoleRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request body")
	}

	role, err := h.svc.Update(c.Request().Context(), principal.Tenant.ID, c.Param("id"), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, role)
}

// Duplicate copies a role.
func (h *Handler) Duplicate(c echo.Context) error {
	principal := auth.GetPrincipal(c)

	role, err := h.svc.Duplicate(c.Request().Context(), principal.Tenant.ID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, role)
}

// SetDefault makes a role the tenant default.
func (h *Handler) SetDefault(c echo.Context) error {
	principal := auth.GetPrincipal(c)

	if err := h.svc.SetDefault(c.Request().Context(), principal.Tenant.ID, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "default_set"})
}

// Delete removes a role, reassigning holders when requested.
func (h *Handler) Delete(c echo.Context) error {
	principal := auth.GetPrincipal(c)

	var req DeleteRoleRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request body")
	}

	if err := h.svc.Delete(c.Request().Context(), principal.Tenant.ID, c.Param("id"), &req); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
