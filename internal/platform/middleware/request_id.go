package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDHeader is the header carrying the per-request correlation ID,
// both incoming (to let an upstream proxy supply one) and outgoing.
const RequestIDHeader = echo.HeaderXRequestID

// RequestID returns middleware that ensures every request has a
// correlation ID: it reuses one supplied via RequestIDHeader, or
// generates a fresh UUID otherwise. The ID is echoed back in the
// response header and stashed in the context under "request_id" for
// Logger and Recovery to pick up.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			c.Set("request_id", id)
			c.Response().Header().Set(RequestIDHeader, id)
			return next(c)
		}
	}
}
