package server

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/transdb/transdb/internal/platform/middleware"
	"github.com/transdb/transdb/internal/store"
)

// RequestTimeout bounds how long any single request may run before the
// router abandons it with a 504. It sits well above LOCK_TIMEOUT so a
// timed-out lock acquisition always produces the store's own 503 first.
const RequestTimeout = 5 * time.Second

// bodyLimitBytes caps the raw bytes the PUT body-limit middleware will
// read before giving up as a DoS guard. It must stay comfortably above
// MaxValueSize+1 so the handler itself always gets to apply the spec's
// exact boundary check and return 400, not 413, at MaxValueSize+1.
const bodyLimitBytes = int64(store.MaxValueSize) * 2

// NewRouter builds the echo router exposing the three /keys/:key
// operations on top of handler, with the ambient middleware stack
// applied in this order: request IDs (first, so Recovery and Logger can
// read the ID), panic recovery, structured logging, request timeout.
func NewRouter(handler *Handler, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = newErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(RequestTimeout))

	keys := e.Group("/keys/:key")
	keys.GET("", handler.Get)
	keys.PUT("", handler.Put, middleware.ValueBodyLimit(bodyLimitBytes))
	keys.DELETE("", handler.Delete)

	return e
}

func newErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := 500
		message := "internal server error"
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			}
		}

		if werr := c.JSON(code, errorBody{Error: message}); werr != nil {
			logger.Error().Err(werr).Msg("failed to write error response")
		}
	}
}
