package token

import (
	"errors"
	"fmt"
	"time"

	"store-management/internal/domain/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// トークンから取り出した利用者
type Principal struct {
	Username string
	Roles    []model.Role
}

type claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// HS256で署名・検証する
type JWT struct {
	secret    []byte
	accessTTL time.Duration
}

func NewJWT(secret string, accessTTL time.Duration) *JWT {
	return &JWT{secret: []byte(secret), accessTTL: accessTTL}
}

func (j *JWT) Issue(username string, roles []model.Role, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(j.accessTTL)

	rs := make([]string, 0, len(roles))
	for _, r := range roles {
		rs = append(rs, string(r))
	}

	c := claims{
		Roles: rs,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := tok.SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// 署名と有効期限を検証してPrincipalを返す
func (j *JWT) Parse(raw string) (Principal, error) {
	var c claims
	tok, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Subject == "" || len(c.Roles) == 0 {
		return Principal{}, ErrInvalidToken
	}

	roles := make([]model.Role, 0, len(c.Roles))
	for _, r := range c.Roles {
		roles = append(roles, model.Role(r))
	}
	return Principal{Username: c.Subject, Roles: roles}, nil
}
