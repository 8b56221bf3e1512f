package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type InvoiceType string

const (
	InvoiceTypeSale     InvoiceType = "SALE"
	InvoiceTypePurchase InvoiceType = "PURCHASE"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentPartial   PaymentStatus = "PARTIAL"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "PENDING"
	InvoiceReady     InvoiceStatus = "READY"
	InvoiceCompleted InvoiceStatus = "COMPLETED"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
)

type Invoice struct {
	ID            uint      `gorm:"primaryKey"`
	UID           uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	BranchID      uint      `gorm:"index;not null"`
	Branch        Branch
	CustomerID    *uint `gorm:"index"`
	Customer      *Customer
	FloorID       *uint
	Floor         *Floor
	InvoiceNumber string      `gorm:"size:30;uniqueIndex;not null"`
	InvoiceType   InvoiceType `gorm:"size:10;not null;default:SALE"`

	Subtotal   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TaxAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Discount   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	PaidAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`

	PaymentStatus PaymentStatus `gorm:"size:20;not null;default:PENDING;index"`
	InvoiceStatus InvoiceStatus `gorm:"size:20;not null;default:PENDING"`

	CreatedByID *uint `gorm:"index"`
	CreatedBy   *User
	// Collection buckets for reporting: which waiter took cash at the table,
	// which counter staff confirmed it. Role tags, not payment types.
	ReceivedByWaiterID  *uint
	ReceivedByWaiter    *User
	ReceivedByCounterID *uint
	ReceivedByCounter   *User

	Notes       string `gorm:"type:text"`
	Description string `gorm:"type:text"`
	IsActive    bool   `gorm:"not null;default:true"`
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time

	Items    []InvoiceItem `gorm:"constraint:OnDelete:CASCADE"`
	Payments []Payment
}

func (inv *Invoice) BeforeCreate(tx *gorm.DB) error {
	if inv.UID == uuid.Nil {
		inv.UID = uuid.New()
	}
	return nil
}

// DueAmount is always derived, never stored.
func (inv *Invoice) DueAmount() decimal.Decimal {
	return inv.TotalAmount.Sub(inv.PaidAmount)
}

// Settled reports whether the invoice is in a terminal state with respect to
// financial mutation.
func (inv *Invoice) Settled() bool {
	return inv.PaymentStatus == PaymentPaid || inv.PaymentStatus == PaymentCancelled
}

// DerivePaymentStatus applies the shared status rule: fully covered amounts
// only become PAID when the acting role holds settlement authority; waiters
// pin the invoice at PARTIAL regardless of the amount collected.
func DerivePaymentStatus(paid, total decimal.Decimal, role UserRole) PaymentStatus {
	if paid.GreaterThanOrEqual(total) && total.IsPositive() && RoleCapabilities(role).CanSettleInvoice {
		return PaymentPaid
	}
	if paid.IsPositive() {
		return PaymentPartial
	}
	return PaymentPending
}

type InvoiceItem struct {
	ID        uint `gorm:"primaryKey"`
	InvoiceID uint `gorm:"index;not null"`
	// ProductID stays nullable so a catalog delete cannot orphan billing
	// history.
	ProductID      *uint `gorm:"index"`
	Product        *Product
	ProductName    string          `gorm:"size:100;not null"`
	Quantity       int64           `gorm:"not null"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	CreatedAt      time.Time
}

// LineTotal = quantity*unit_price - discount_amount.
func (it *InvoiceItem) LineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(it.Quantity)).Sub(it.DiscountAmount)
}
