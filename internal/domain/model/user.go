package model

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleManager  Role = "MANAGER"
	RoleEmployee Role = "EMPLOYEE"
)

// 認証済みユーザー。起動時にシードされ、DBには保存しない。
type User struct {
	Username     string
	PasswordHash string
	Roles        []Role
}

