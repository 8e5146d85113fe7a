package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/logging"
)

// RequestLogger tags the request context with a request id (taken from
// X-Request-ID or freshly generated) and logs one line per request.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = logging.NewRequestID()
			}
			ctx := logging.WithRequestID(req.Context(), id)
			c.SetRequest(req.WithContext(ctx))
			c.Response().Header().Set(echo.HeaderXRequestID, id)

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			ev := logging.Ctx(ctx).Info()
			if status >= 500 {
				ev = logging.Ctx(ctx).Error().Err(err)
			}
			ev.Str("method", req.Method).
				Str("route", c.Path()).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("caller", userID(c)).
				Msg("request")
			return nil
		}
	}
}
