package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/utils"
)

// Context keys set by the auth middleware.
const (
	ctxUserID = "user_id"
	ctxRole   = "role"
	ctxCaller = "caller"
)

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"msg": msg})
}

// bearer returns the raw token of an Authorization header, if any.
func bearer(c echo.Context) (string, bool) {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")), true
}

// authenticate parses the access token and stores its subject and role.
func authenticate(c echo.Context, secret, raw string) error {
	claims, err := utils.ParseAccessToken(secret, raw)
	if err != nil {
		return err
	}
	id, err := claims.UserID()
	if err != nil {
		return err
	}
	c.Set(ctxUserID, id)
	c.Set(ctxRole, claims.Role)
	return nil
}

// JWTAuth requires a valid Bearer access token and injects the user id
// and role claim into the request context.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				return unauthorized(c, "Missing bearer token.")
			}
			if err := authenticate(c, secret, raw); err != nil {
				return unauthorized(c, "Invalid or expired token.")
			}
			return next(c)
		}
	}
}

// OptionalAuth lets requests without an Authorization header through as
// guests. A header that is present but invalid is still rejected.
func OptionalAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get(echo.HeaderAuthorization) == "" {
				return next(c)
			}
			raw, ok := bearer(c)
			if !ok {
				return unauthorized(c, "Malformed authorization header.")
			}
			if err := authenticate(c, secret, raw); err != nil {
				return unauthorized(c, "Invalid or expired token.")
			}
			return next(c)
		}
	}
}
