package models

import "time"

type ApiKey struct {
	Id          string     `json:"id" bson:"api_key_id"`
	MerchantId  string     `json:"merchant_id" bson:"merchant_id"`
	Name        string     `json:"name" bson:"name"`
	Hash        string     `json:"-" bson:"hash"`
	Prefix      string     `json:"prefix" bson:"prefix"`
	Permissions []string   `json:"permissions" bson:"permissions"`
	Active      bool       `json:"active" bson:"active"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty" bson:"last_used_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
}

func (k *ApiKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

type RefreshToken struct {
	Id        string     `json:"id" bson:"token_id"`
	UserId    string     `json:"user_id" bson:"user_id"`
	Hash      string     `json:"-" bson:"hash"`
	ExpiresAt time.Time  `json:"expires_at" bson:"expires_at"`
	Revoked   bool       `json:"revoked" bson:"revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" bson:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
}
