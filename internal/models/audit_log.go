package models

import "time"

type AuditAction string

const (
	AuditActionCreate  AuditAction = "create"
	AuditActionUpdate  AuditAction = "update"
	AuditActionDelete  AuditAction = "delete"
	AuditActionCancel  AuditAction = "cancel"
	AuditActionRefund  AuditAction = "refund"
	AuditActionCorrect AuditAction = "correct"
)

// AuditLog records before/after snapshots of financially sensitive mutations
// (invoice cancellation, payment refunds, ledger corrections).
type AuditLog struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"index"`

	BranchID *uint `gorm:"index"`

	UserID   uint
	UserName string `gorm:"size:100"` // denormalized for display

	EntityType string `gorm:"size:50;index"`
	EntityID   uint   `gorm:"index"`

	Action      AuditAction `gorm:"size:20"`
	Description string      `gorm:"size:255"`

	BeforeData string `gorm:"type:jsonb"`
	AfterData  string `gorm:"type:jsonb"`
}
