package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout returns middleware that bounds the wall-clock time of a
// request at timeout. It is a backstop above the store's own LOCK_TIMEOUT:
// a request still running once timeout elapses is abandoned and answered
// with 504, whatever stage it is stuck in.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))

			// Run handler in a goroutine so we can select on the context.
			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					return gatewayTimeoutError(c)
				}
				return ctx.Err()
			}
		}
	}
}

// gatewayTimeoutError returns a 504 response in the standard error body shape.
func gatewayTimeoutError(c echo.Context) error {
	if !c.Response().Committed {
		return c.JSON(http.StatusGatewayTimeout, errorBody{Error: "Request processing exceeded the allowed time limit"})
	}
	return nil
}
