package common

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"loopcast.media/loopcast/internal/auth"
)

const (
	ctxUserID = "authUserID"
	ctxRole   = "authRole"
)

// BearerAuth extracts and verifies the bearer token on every request in
// the group, storing the identity in the echo context for handlers.
func BearerAuth(verifier *auth.Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return ErrUnauthorized()
			}

			subject, role, err := verifier.Verify(token)
			if err != nil {
				return ErrUnauthorized()
			}

			c.Set(ctxUserID, subject)
			c.Set(ctxRole, role)
			return next(c)
		}
	}
}

// RequireUser returns the authenticated end-user identity. Worker tokens
// are rejected: internal credentials must not act as users.
func RequireUser(c echo.Context) (uuid.UUID, error) {
	id, role, err := identity(c)
	if err != nil {
		return uuid.Nil, err
	}
	if role != auth.RoleUser {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "user token required")
	}
	return id, nil
}

// RequireWorker returns the worker identity for internal callbacks.
// End-user tokens are rejected.
func RequireWorker(c echo.Context) (uuid.UUID, error) {
	id, role, err := identity(c)
	if err != nil {
		return uuid.Nil, err
	}
	if role != auth.RoleWorker {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "worker token required")
	}
	return id, nil
}

func identity(c echo.Context) (uuid.UUID, auth.Role, error) {
	id, ok := c.Get(ctxUserID).(uuid.UUID)
	if !ok {
		return uuid.Nil, "", ErrUnauthorized()
	}
	role, ok := c.Get(ctxRole).(auth.Role)
	if !ok {
		return uuid.Nil, "", ErrUnauthorized()
	}
	return id, role, nil
}
