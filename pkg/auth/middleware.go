package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/slotwise/slotwise-core/pkg/apperror"
	"github.com/slotwise/slotwise-core/pkg/logger"
	"github.com/slotwise/slotwise-core/pkg/permissions"
)

// Module provides the resolver and middleware.
var Module = fx.Module("auth",
	fx.Provide(NewResolver),
	fx.Provide(NewMiddleware),
)

// Middleware guards routes behind identity resolution and permission
// checks.
type Middleware struct {
	resolver *Resolver
	log      *slog.Logger
}

// NewMiddleware creates the auth middleware.
func NewMiddleware(resolver *Resolver, log *slog.Logger) *Middleware {
	return &Middleware{
		resolver: resolver,
		log:      log.With(logger.Scope("auth")),
	}
}

// RequireAuth resolves the bearer credential to a Principal and stores
// it on the request context. Requests without a resolvable tenant are
// rejected here, before any handler runs.
func (m *Middleware) RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractToken(c.Request())
			if token == "" {
				return apperror.ErrMissingToken
			}

			principal, err := m.resolver.Resolve(c.Request().Context(), token)
			if err != nil {
				if appErr, ok := err.(*apperror.Error); ok && appErr.HTTPStatus < http.StatusInternalServerError {
					m.log.Warn("authentication failed", slog.String("code", appErr.Code))
				} else {
					m.log.Error("identity resolution failed", logger.Error(err))
				}
				return err
			}

			setPrincipal(c, principal)
			return next(c)
		}
	}
}

// RequireIdentity verifies the credential but tolerates callers not
// yet attached to any tenant. Used by workspace creation, which is
// exactly the operation a tenant-less identity performs.
func (m *Middleware) RequireIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractToken(c.Request())
			if token == "" {
				return apperror.ErrMissingToken
			}

			principal, err := m.resolver.Resolve(c.Request().Context(), token)
			if err != nil {
				if appErr, ok := err.(*apperror.Error); ok && appErr.Code == apperror.ErrNoWorkspace.Code {
					identity, verr := m.resolver.VerifyOnly(c.Request().Context(), token)
					if verr != nil {
						return verr
					}
					setPrincipal(c, &Principal{Identity: *identity})
					return next(c)
				}
				return err
			}

			setPrincipal(c, principal)
			return next(c)
		}
	}
}

// RequirePermission rejects callers whose role does not grant the
// required level for a resource. Must run after RequireAuth.
func (m *Middleware) RequirePermission(resource permissions.Resource, level permissions.Level) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal := GetPrincipal(c)
			if principal == nil {
				return apperror.ErrUnauthenticated
			}

			if !principal.Can(resource, level) {
				return apperror.ErrForbidden.WithDetails(map[string]any{
					"resource": string(resource),
					"required": string(level),
				})
			}

			return next(c)
		}
	}
}

// extractToken pulls the bearer token from the Authorization header.
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
