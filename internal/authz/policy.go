package authz

import "store-management/internal/domain/model"

type Operation string

const (
	OpCreate      Operation = "product:create"
	OpUpdate      Operation = "product:update"
	OpUpdatePrice Operation = "product:update-price"
	OpUpdateStock Operation = "product:update-stock"
	OpRead        Operation = "product:read"
	OpList        Operation = "product:list"
	OpDelete      Operation = "product:delete"
)

var (
	managers = []model.Role{model.RoleAdmin, model.RoleManager}
	everyone = []model.Role{model.RoleAdmin, model.RoleManager, model.RoleEmployee}
)

// 操作ごとに許可するロール
var policy = map[Operation][]model.Role{
	OpCreate:      managers,
	OpUpdate:      managers,
	OpUpdatePrice: managers,
	OpDelete:      managers,
	OpUpdateStock: everyone,
	OpRead:        everyone,
	OpList:        everyone,
}

// rolesのどれかがopを許可されていればtrue。未知の操作は拒否。
func Allowed(roles []model.Role, op Operation) bool {
	allowed, ok := policy[op]
	if !ok {
		return false
	}
	for _, have := range roles {
		for _, want := range allowed {
			if have == want {
				return true
			}
		}
	}
	return false
}
