package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"store-management/internal/domain/model"
	"store-management/internal/infra/token"

	"github.com/labstack/echo/v4"
)

const (
	CtxUsernameKey = "username" // string
	CtxRolesKey    = "roles"    // []model.Role

	basicRealm = `Basic realm="store-management"`
)

// Basic認証の照合
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (model.User, error)
}

// Bearerトークンの検証
type TokenParser interface {
	Parse(raw string) (token.Principal, error)
}

// Basic（シードユーザー）またはBearer JWTで認証する。
func Authenticate(authn Authenticator, tokens TokenParser) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			//Authorizationヘッダを取得
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return unauthorized(c)
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 {
				return unauthorized(c)
			}

			switch {
			case strings.EqualFold(parts[0], "Basic"):
				username, password, ok := c.Request().BasicAuth()
				if !ok {
					return unauthorized(c)
				}
				user, err := authn.Authenticate(c.Request().Context(), username, password)
				if err != nil {
					return unauthorized(c)
				}
				c.Set(CtxUsernameKey, user.Username)
				c.Set(CtxRolesKey, user.Roles)

			case strings.EqualFold(parts[0], "Bearer"):
				raw := strings.TrimSpace(parts[1])
				if raw == "" {
					return unauthorized(c)
				}
				p, err := tokens.Parse(raw)
				if err != nil {
					return unauthorized(c)
				}
				c.Set(CtxUsernameKey, p.Username)
				c.Set(CtxRolesKey, p.Roles)

			default:
				return unauthorized(c)
			}

			return next(c)
		}
	}
}

// ハンドラと同じ形のエラー
type errorResponse struct {
	ErrorCode    string    `json:"errorCode"`
	ErrorMessage string    `json:"errorMessage"`
	ErrorTime    time.Time `json:"errorTime"`
}

func errorJSON(status int, msg string) errorResponse {
	return errorResponse{
		ErrorCode:    http.StatusText(status),
		ErrorMessage: msg,
		ErrorTime:    time.Now(),
	}
}

func unauthorized(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, basicRealm)
	return c.JSON(http.StatusUnauthorized, errorJSON(http.StatusUnauthorized, "unauthorized"))
}
