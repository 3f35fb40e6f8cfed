package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin        = "admin"
	RoleDataManager  = "data-manager"
	RoleInvestigator = "investigator"
	RoleMonitor      = "monitor"
)

// Writers may create, edit and delete trial data.
var Writers = []string{RoleDataManager, RoleInvestigator}

// Readers may view trial data.
var Readers = []string{RoleDataManager, RoleInvestigator, RoleMonitor}

// RequireRole returns middleware that checks if the user has at least one of
// the given roles. Admin passes every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasRole(RolesFromContext(c.Request().Context()), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// HasRole reports whether granted satisfies any of required.
func HasRole(granted []string, required ...string) bool {
	for _, has := range granted {
		if has == RoleAdmin {
			return true
		}
		for _, want := range required {
			if has == want {
				return true
			}
		}
	}
	return false
}

// ReadWrite picks the read or write role set by HTTP method.
func ReadWrite() echo.MiddlewareFunc {
	read, write := RequireRole(Readers...), RequireRole(Writers...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		readNext, writeNext := read(next), write(next)
		return func(c echo.Context) error {
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return readNext(c)
			default:
				return writeNext(c)
			}
		}
	}
}
