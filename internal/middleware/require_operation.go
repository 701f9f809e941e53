package middleware

import (
	"net/http"

	"store-management/internal/authz"
	"store-management/internal/domain/model"

	"github.com/labstack/echo/v4"
)

// contextのロールでopが許可されているかを確認します。
func RequireOperation(op authz.Operation) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			roles, ok := c.Get(CtxRolesKey).([]model.Role)
			if !ok || len(roles) == 0 {
				return unauthorized(c)
			}

			if !authz.Allowed(roles, op) {
				return c.JSON(http.StatusForbidden, errorJSON(http.StatusForbidden, "access denied"))
			}

			return next(c)
		}
	}
}
