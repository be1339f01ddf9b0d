package server

import "github.com/labstack/echo/v4"

// errorBody is the JSON shape of every non-success response, per the
// wire format: {"error": "<human-readable message>"}.
type errorBody struct {
	Error string `json:"error"`
}

func writeError(c echo.Context, status int, message string) error {
	return c.JSON(status, errorBody{Error: message})
}
