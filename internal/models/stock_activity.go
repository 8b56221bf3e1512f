package models

import "time"

// ActivityKind says how an entry's change applies to the running quantity:
// ADD folds +change, REDUCE folds -change, EDIT overwrites the on-hand with
// the change value (used for counted corrections and opening stock).
type ActivityKind string

const (
	ActivityAdd    ActivityKind = "ADD"
	ActivityReduce ActivityKind = "REDUCE"
	ActivityEdit   ActivityKind = "EDIT"
)

// StockActivity is a ledger entry. For a fixed product the entries ordered by
// (created_at, id) form a consistent fold: each ResultingQuantity equals the
// previous one with this entry's change applied. Rows are append-only except
// through ledger.Correct, which rewrites a past change and replays the suffix.
type StockActivity struct {
	ID        uint `gorm:"primaryKey"`
	ProductID uint `gorm:"index:idx_activity_product_order;not null"`
	Product   Product
	Kind      ActivityKind `gorm:"size:10;not null"`
	// Change is the signed magnitude as posted (always >= 0; Kind carries the
	// direction).
	Change            int64 `gorm:"not null"`
	ResultingQuantity int64 `gorm:"not null"`
	InvoiceID         *uint `gorm:"index"`
	Invoice           *Invoice
	Remarks           string    `gorm:"size:255"`
	CreatedAt         time.Time `gorm:"index:idx_activity_product_order"`
}
