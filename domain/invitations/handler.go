package invitations

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/slotwise/slotwise-core/pkg/apperror"
	"github.com/slotwise/slotwise-core/pkg/auth"
)

func pathID(c echo.Context) (string, error) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", apperror.NewValidation("Invalid invitation id")
	}
	return id, nil
}

// Handler exposes the invitation endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a new invitation handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create handles POST /api/team/invite
func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("Invalid request body")
	}
	inv, err := h.service.Create(c.Request().Context(), auth.GetPrincipal(c), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"invitation": inv})
}

// List handles GET /api/team/invitations
func (h *Handler) List(c echo.Context) error {
	views, err := h.service.List(c.Request().Context(), auth.GetPrincipal(c).Tenant.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"invitations": views})
}

// Cancel handles DELETE /api/team/invite/:id
func (h *Handler) Cancel(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.service.Cancel(c.Request().Context(), auth.GetPrincipal(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Resend handles POST /api/team/invite/:id/resend
func (h *Handler) Resend(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	inv, err := h.service.Resend(c.Request().Context(), auth.GetPrincipal(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"invitation": inv})
}

// ValidateByToken handles GET /api/invitation/:token (public)
func (h *Handler) ValidateByToken(c echo.Context) error {
	view, err := h.service.ValidateByToken(c.Request().Context(), c.Param("token"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// ValidateByCode handles GET /api/invitation/code/:code?email= (public)
func (h *Handler) ValidateByCode(c echo.Context) error {
	view, err := h.service.ValidateByCode(c.Request().Context(), c.Param("code"), c.QueryParam("email"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// Join handles POST /api/join (public)
func (h *Handler) Join(c echo.Context) error {
	var req JoinRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("Invalid request body")
	}
	resp, err := h.service.Join(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, resp)
}
