package directory

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/slotwise/slotwise-core/pkg/apperror"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string    `json:"token"`
	Identity *Identity `json:"identity"`
}

// RegisterLocalRoutes mounts a password login endpoint when the local
// directory is active. In OIDC mode the identity provider owns login
// and this route does not exist.
func RegisterLocalRoutes(e *echo.Echo, dir Directory) {
	local, ok := dir.(*LocalDirectory)
	if !ok {
		return
	}

	e.POST("/api/auth/login", func(c echo.Context) error {
		var req loginRequest
		if err := c.Bind(&req); err != nil {
			return apperror.NewValidation("Invalid request body")
		}
		token, identity, err := local.Authenticate(c.Request().Context(), req.Email, req.Password)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, loginResponse{Token: token, Identity: identity})
	})
}
