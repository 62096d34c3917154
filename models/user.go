package models

import "time"

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleMerchant  Role = "merchant"
	RoleDeveloper Role = "developer"
)

type User struct {
	Id         string     `json:"id" bson:"user_id"`
	MerchantId string     `json:"merchant_id,omitempty" bson:"merchant_id"`
	Email      string     `json:"email" bson:"email"`
	Password   string     `json:"-" bson:"password"`
	Name       string     `json:"name" bson:"name"`
	Role       Role       `json:"role" bson:"role"`
	Active     bool       `json:"active" bson:"active"`
	LastLogin  *time.Time `json:"last_login,omitempty" bson:"last_login,omitempty"`
	CreatedAt  time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" bson:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
