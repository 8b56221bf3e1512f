package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentMethod string

const (
	MethodCash   PaymentMethod = "CASH"
	MethodCard   PaymentMethod = "CARD"
	MethodMobile PaymentMethod = "MOBILE"
)

type Payment struct {
	ID        uint `gorm:"primaryKey"`
	InvoiceID uint `gorm:"index;not null"`
	Invoice   Invoice
	// Amount is zero only for a handover confirmation (waiter cash passed to
	// the counter); every real payment is positive.
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	PaymentMethod PaymentMethod   `gorm:"size:20;not null;default:CASH"`
	TransactionID uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null"`
	ReceivedByID  *uint           `gorm:"index"`
	ReceivedBy    *User
	Notes         string `gorm:"size:255"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.TransactionID == uuid.Nil {
		p.TransactionID = uuid.New()
	}
	return nil
}
