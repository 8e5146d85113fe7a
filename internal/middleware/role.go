package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/model"
)

// RequireRole enforces that the caller's effective role is one of roles.
// It must run after LoadCaller.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := Caller(c)
			if !ok {
				return unauthorized(c, "Authentication required.")
			}
			if !u.HasRole(roles...) {
				return c.JSON(http.StatusForbidden, echo.Map{"msg": "Your account type is not allowed to do this."})
			}
			return next(c)
		}
	}
}
