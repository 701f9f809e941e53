package auth

import (
	"context"
	"errors"
	"time"

	"store-management/internal/domain/model"
	"store-management/internal/repository"
)

// handlerからusecaseに渡す入力
type LoginInput struct {
	Username string
	Password string
}

// handlerがJSONにして返す
type LoginOutput struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	Username    string       `json:"username"`
	Roles       []model.Role `json:"roles"`
}

// ユーザー名またはパスワードが違う
var ErrInvalidCredentials = errors.New("invalid credentials")

// JWTを発行する約束
type AccessTokenIssuer interface {
	Issue(username string, roles []model.Role, now time.Time) (token string, expiresAt time.Time, err error)
}

// 現在の時間
type Clock interface {
	Now() time.Time
}

type LoginUsecase struct {
	userRepo repository.UserRepository
	verifier PasswordVerifier
	issuer   AccessTokenIssuer
	clock    Clock
}

func NewLoginUsecase(
	userRepo repository.UserRepository,
	verifier PasswordVerifier,
	issuer AccessTokenIssuer,
	clock Clock,
) *LoginUsecase {
	return &LoginUsecase{
		userRepo: userRepo,
		verifier: verifier,
		issuer:   issuer,
		clock:    clock,
	}
}

// Basic認証の照合。成功したらユーザーを返す
func (u *LoginUsecase) Authenticate(ctx context.Context, username, password string) (model.User, error) {
	user, err := u.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.User{}, ErrInvalidCredentials
		}
		return model.User{}, err
	}

	//パスワード照合
	if ok := u.verifier.Verify(password, user.PasswordHash); !ok {
		return model.User{}, ErrInvalidCredentials
	}

	user.PasswordHash = ""
	return user, nil
}

// 資格情報を確認してアクセストークンを発行する
func (u *LoginUsecase) Execute(ctx context.Context, in LoginInput) (LoginOutput, error) {
	user, err := u.Authenticate(ctx, in.Username, in.Password)
	if err != nil {
		return LoginOutput{}, err
	}

	now := u.clock.Now()
	token, exp, err := u.issuer.Issue(user.Username, user.Roles, now)
	if err != nil {
		return LoginOutput{}, err
	}

	return LoginOutput{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(exp.Sub(now).Seconds()),
		Username:    user.Username,
		Roles:       user.Roles,
	}, nil
}
