package middleware

// identity.go resolves the authenticated user behind a token and exposes
// it to handlers and to the cache and rate limit key builders.

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/logging"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/service"
)

// UserLoader loads the stored user for a token subject.
type UserLoader interface {
	Load(ctx context.Context, id uint64) (*model.User, error)
}

// LoadCaller replaces the token claims with the stored user so account
// type changes apply without a new login. It is a no-op for guests.
func LoadCaller(users UserLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := c.Get(ctxUserID).(uint64)
			if !ok {
				return next(c)
			}
			u, err := users.Load(c.Request().Context(), id)
			if err != nil {
				if service.KindOf(err) == service.KindNotFound {
					return unauthorized(c, "Account no longer exists.")
				}
				logging.Ctx(c.Request().Context()).Error().Err(err).Uint64("user_id", id).Msg("load caller failed")
				return c.JSON(http.StatusInternalServerError, echo.Map{"msg": "Internal error."})
			}
			c.Set(ctxCaller, *u)
			return next(c)
		}
	}
}

// Caller returns the authenticated user, if LoadCaller found one.
func Caller(c echo.Context) (model.User, bool) {
	u, ok := c.Get(ctxCaller).(model.User)
	return u, ok
}

// userID identifies the requester for cache and rate limit keys. It
// returns "guest" when nobody is authenticated.
func userID(c echo.Context) string {
	if id, ok := c.Get(ctxUserID).(uint64); ok {
		return strconv.FormatUint(id, 10)
	}
	return "guest"
}
