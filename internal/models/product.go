package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID         uint      `gorm:"primaryKey"`
	UID        uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	CategoryID uint      `gorm:"index;not null"`
	Category   ProductCategory
	Name       string          `gorm:"size:100;not null"`
	CostPrice  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	SellPrice  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	// Quantity is a cache of the stock ledger's latest fold. The ledger is
	// authoritative; only internal/ledger writes this column.
	Quantity    int64 `gorm:"not null;default:0"`
	LowStockBar int64 `gorm:"not null;default:0"`
	IsAvailable bool  `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.UID == uuid.Nil {
		p.UID = uuid.New()
	}
	return nil
}

// LowOnStock reports whether the cached quantity has fallen to the low-stock
// bar or below.
func (p *Product) LowOnStock() bool {
	return p.Quantity <= p.LowStockBar
}
