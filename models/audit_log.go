package models

import "time"

// AuditLog keeps a record of every sensitive operation; retained for years
type AuditLog struct {
	Id            string                 `json:"id" bson:"audit_id"`
	MerchantId    string                 `json:"merchant_id,omitempty" bson:"merchant_id,omitempty"`
	UserId        string                 `json:"user_id,omitempty" bson:"user_id,omitempty"`
	TransactionId string                 `json:"transaction_id,omitempty" bson:"transaction_id,omitempty"`
	Action        string                 `json:"action" bson:"action"`
	Resource      string                 `json:"resource" bson:"resource"`
	Method        string                 `json:"method,omitempty" bson:"method,omitempty"`
	Path          string                 `json:"path,omitempty" bson:"path,omitempty"`
	IPAddress     string                 `json:"ip_address,omitempty" bson:"ip_address,omitempty"`
	UserAgent     string                 `json:"user_agent,omitempty" bson:"user_agent,omitempty"`
	ResponseCode  int                    `json:"response_code,omitempty" bson:"response_code,omitempty"`
	ErrorMessage  string                 `json:"error_message,omitempty" bson:"error_message,omitempty"`
	Duration      int64                  `json:"duration" bson:"duration"`
	Metadata      map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"created_at" bson:"created_at"`
}

type AuditFilter struct {
	MerchantId    string
	UserId        string
	TransactionId string
	Action        string
	Resource      string
	From          time.Time
	To            time.Time
	Limit         int
	Offset        int
}
