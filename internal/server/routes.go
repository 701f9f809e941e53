package server

import (
	"net/http"

	"store-management/internal/handler"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(
	e *echo.Echo,
	productH *handler.ProductHandler,
	authH *handler.AuthHandler,
	authn echo.MiddlewareFunc,
	metrics http.Handler,
) {
	//認証なし
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "UP"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics))
	authH.RegisterRoutes(e)

	productH.RegisterRoutes(e, authn)
}
