package invoice

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"pos-backend/internal/apperr"
	"pos-backend/internal/database"
	"pos-backend/internal/models"
)

// NextNumber produces the branch's next invoice number, format
// BB-YYYY-MM-DD-SS: zero-padded branch id, date, daily sequence starting at
// 01. Must be called inside the same transaction that inserts the invoice.
// The branch row is taken under a write lock first, so concurrent creations
// for the same branch queue up here and each reads the history only after
// the previous transaction committed its insert. Locking the latest invoice
// row instead would not serialize anything: the branch's first invoice has
// no row to lock, and under READ COMMITTED a waiter woken on that lock still
// reads its stale statement snapshot and computes a duplicate. Past 99 the
// sequence widens to three digits rather than failing the sale.
func NextNumber(tx *gorm.DB, branchID uint, now time.Time) (string, error) {
	var branch models.Branch
	if err := database.LockForUpdate(tx).First(&branch, "id = ?", branchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperr.NotFound("branch")
		}
		return "", err
	}

	today := now.Format("2006-01-02")

	var latest models.Invoice
	err := tx.
		Where("branch_id = ?", branchID).
		Order("created_at DESC, id DESC").
		First(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Sprintf("%02d-%s-%02d", branchID, today, 1), nil
	}
	if err != nil {
		return "", err
	}

	if latest.CreatedAt.Format("2006-01-02") != today {
		// First invoice of the day resets the sequence.
		return fmt.Sprintf("%02d-%s-%02d", branchID, today, 1), nil
	}

	parts := strings.Split(latest.InvoiceNumber, "-")
	seq, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return "", fmt.Errorf("malformed invoice number %q: %w", latest.InvoiceNumber, err)
	}
	return fmt.Sprintf("%02d-%s-%02d", branchID, today, seq+1), nil
}
