package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/edc/edc/internal/platform/auth"
)

// PanicObserver counts recovered panics per route.
type PanicObserver interface {
	ObservePanic(route string)
}

// Recovery turns a handler panic into a 500 carrying the request id, so the
// caller can quote it when reporting the failure. A response that was already
// started is left as is.
func Recovery(logger zerolog.Logger, observers ...PanicObserver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				route := c.Path()
				if route == "" {
					route = c.Request().URL.Path
				}
				rid := requestID(c)
				logger.Error().
					Str("request_id", rid).
					Str("user_id", auth.UserIDFromContext(c.Request().Context())).
					Str("method", c.Request().Method).
					Str("route", route).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")
				for _, o := range observers {
					if o != nil {
						o.ObservePanic(route)
					}
				}

				if c.Response().Committed {
					err = nil
					return
				}
				err = c.JSON(http.StatusInternalServerError, map[string]string{
					"error":      "internal server error",
					"request_id": rid,
				})
			}()
			return next(c)
		}
	}
}
