package models

import "goflare.io/checkout/models/enum"

// User 代表已驗證的呼叫者
// User represents the authenticated caller resolved from the bearer token
type User struct {
	ID    string    `json:"id"`
	Email string    `json:"email"`
	Role  enum.Role `json:"role"`
}

func (u *User) IsAdmin() bool {
	return u.Role == enum.RoleAdmin
}
