package models

import "time"

// Merchant is a tenant of the platform
type Merchant struct {
	Id          string     `json:"id" bson:"merchant_id"`
	Name        string     `json:"name" bson:"name"`
	Document    string     `json:"document" bson:"document"`
	Email       string     `json:"email" bson:"email"`
	Phone       string     `json:"phone" bson:"phone"`
	Active      bool       `json:"active" bson:"active"`
	WebhookURL  string     `json:"webhook_url" bson:"webhook_url"`
	IPWhitelist []string   `json:"ip_whitelist" bson:"ip_whitelist"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" bson:"deleted_at,omitempty"`
}
