package common

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequireUUIDParam extracts a UUID route parameter or returns a 400 error.
func RequireUUIDParam(c echo.Context, param string) (uuid.UUID, error) {
	u, err := uuid.Parse(c.Param(param))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+param)
	}
	return u, nil
}

// IntQueryParam parses an optional integer query parameter, falling back
// to def when absent or malformed.
func IntQueryParam(c echo.Context, param string, def int) int {
	v := c.QueryParam(param)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// IsTruthyQueryParam returns true if the query param value represents a
// truthy value.
func IsTruthyQueryParam(v string) bool {
	switch v {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
