package members

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/slotwise/slotwise-core/pkg/apperror"
	"github.com/slotwise/slotwise-core/pkg/auth"
)

// pathID validates the :id route param before it reaches the store.
func pathID(c echo.Context) (string, error) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", apperror.NewValidation("Invalid member id")
	}
	return id, nil
}

// Handler exposes the team roster endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a new member handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List handles GET /api/team
func (h *Handler) List(c echo.Context) error {
	resp, err := h.service.List(c.Request().Context(), auth.GetPrincipal(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Add handles POST /api/team
func (h *Handler) Add(c echo.Context) error {
	var req AddMemberRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("Invalid request body")
	}
	member, err := h.service.Add(c.Request().Context(), auth.GetPrincipal(c), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"member": member})
}

// SendNotification handles POST /api/team/:id/send-notification
func (h *Handler) SendNotification(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.service.SendSetupNotification(c.Request().Context(), auth.GetPrincipal(c), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"sent": true})
}

// Remove handles DELETE /api/team/:id
func (h *Handler) Remove(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.service.Remove(c.Request().Context(), auth.GetPrincipal(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ChangeRole handles PATCH /api/team/:id
func (h *Handler) ChangeRole(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req ChangeRoleRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("Invalid request body")
	}
	if err := h.service.ChangeRole(c.Request().Context(), auth.GetPrincipal(c), id, &req); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ValidateSetup handles GET /api/team/setup/:token (public)
func (h *Handler) ValidateSetup(c echo.Context) error {
	info, err := h.service.ValidateSetup(c.Request().Context(), c.Param("token"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}

// CompleteSetup handles POST /api/team/setup/:token (public)
func (h *Handler) CompleteSetup(c echo.Context) error {
	var req CompleteSetupRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("Invalid request body")
	}
	err := h.service.CompleteSetup(c.Request().Context(), c.Param("token"), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"completed": true})
}
