package server

import (
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	corsAllowHeaders = "authorization, x-client-info, apikey, content-type"
	corsAllowMethods = "POST, GET, OPTIONS"
)

// corsMiddleware decorates every response with CORS headers and answers
// preflight requests with an empty 200 before routing.
func corsMiddleware(allowed []string) echo.MiddlewareFunc {
	wildcard := slices.Contains(allowed, "*")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Response().Header()
			origin := c.Request().Header.Get(echo.HeaderOrigin)

			switch {
			case wildcard:
				header.Set(echo.HeaderAccessControlAllowOrigin, "*")
			case origin != "" && slices.ContainsFunc(allowed, func(o string) bool { return strings.EqualFold(o, origin) }):
				header.Set(echo.HeaderAccessControlAllowOrigin, origin)
				header.Add(echo.HeaderVary, echo.HeaderOrigin)
			}
			header.Set(echo.HeaderAccessControlAllowHeaders, corsAllowHeaders)
			header.Set(echo.HeaderAccessControlAllowMethods, corsAllowMethods)

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}
