package models

import "time"

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

// IdempotencyKey provides durable, DB-backed idempotency for workflow
// commands. Unique constraint: (command_name, client_key).
// Result holds the serialized outcome of the first successful run so a
// replayed command returns the same answer without re-executing.
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	CommandName string            `gorm:"size:100;not null;index:uniq_idem,unique" json:"command_name"`
	ClientKey   string            `gorm:"size:255;not null;index:uniq_idem,unique" json:"client_key"`
	Status      IdempotencyStatus `gorm:"size:20;not null;index" json:"status"`
	Result      *string           `gorm:"type:text" json:"result"`
	LastError   *string           `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
