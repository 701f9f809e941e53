package handler

import (
	"errors"
	"net/http"

	auth "store-management/internal/usecase/auth_usecase"

	"github.com/labstack/echo/v4"
)

type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// POST /api/auth/token
type AuthHandler struct {
	loginUC *auth.LoginUsecase
}

// DI
func NewAuthHandler(loginUC *auth.LoginUsecase) *AuthHandler {
	return &AuthHandler{loginUC: loginUC}
}

func (h *AuthHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/auth/token", h.issueToken)
}

// ユーザー名/パスワードをアクセストークンに交換する
func (h *AuthHandler) issueToken(c echo.Context) error {
	var req TokenRequest
	if err := decodeJSON(c.Request(), &req); err != nil {
		return badRequest(c, err)
	}
	fields := map[string]string{}
	if req.Username == "" {
		fields["username"] = "must not be blank"
	}
	if req.Password == "" {
		fields["password"] = "must not be blank"
	}
	if len(fields) > 0 {
		return c.JSON(http.StatusBadRequest, fields)
	}

	out, err := h.loginUC.Execute(c.Request().Context(), auth.LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, errorBody(http.StatusUnauthorized, "invalid credentials", nil))
		}
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}
