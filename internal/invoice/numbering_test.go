package invoice_test

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"pos-backend/internal/apperr"
	"pos-backend/internal/invoice"
	"pos-backend/internal/models"
	"pos-backend/internal/testutil"
)

func seedInvoice(t *testing.T, db *gorm.DB, branchID uint, number string, createdAt time.Time) {
	t.Helper()
	inv := models.Invoice{
		BranchID:      branchID,
		InvoiceNumber: number,
		InvoiceType:   models.InvoiceTypeSale,
		PaymentStatus: models.PaymentPending,
		InvoiceStatus: models.InvoicePending,
		CreatedAt:     createdAt,
	}
	if err := db.Create(&inv).Error; err != nil {
		t.Fatalf("seed invoice %s: %v", number, err)
	}
}

func nextNumber(t *testing.T, db *gorm.DB, branchID uint, now time.Time) string {
	t.Helper()
	var number string
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		number, err = invoice.NextNumber(tx, branchID, now)
		return err
	})
	if err != nil {
		t.Fatalf("next number: %v", err)
	}
	return number
}

func TestNextNumberFirstOfDay(t *testing.T) {
	db := testutil.OpenDB(t)
	branch, _ := testutil.SeedBranch(t, db, "B1")

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	if got := nextNumber(t, db, branch.ID, now); got != "01-2024-06-01-01" {
		t.Fatalf("number = %q, want 01-2024-06-01-01", got)
	}
}

func TestNextNumberIncrementsSameDay(t *testing.T) {
	db := testutil.OpenDB(t)
	branch, _ := testutil.SeedBranch(t, db, "B1")

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	seedInvoice(t, db, branch.ID, "01-2024-06-01-01", now.Add(-time.Hour))

	if got := nextNumber(t, db, branch.ID, now); got != "01-2024-06-01-02" {
		t.Fatalf("number = %q, want 01-2024-06-01-02", got)
	}
}

func TestNextNumberResetsOnNewDay(t *testing.T) {
	db := testutil.OpenDB(t)
	branch, _ := testutil.SeedBranch(t, db, "B1")

	yesterday := time.Date(2024, 5, 31, 23, 0, 0, 0, time.UTC)
	seedInvoice(t, db, branch.ID, "01-2024-05-31-17", yesterday)

	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	if got := nextNumber(t, db, branch.ID, now); got != "01-2024-06-01-01" {
		t.Fatalf("number = %q, want 01-2024-06-01-01", got)
	}
}

func TestNextNumberWidensPast99(t *testing.T) {
	db := testutil.OpenDB(t)
	branch, _ := testutil.SeedBranch(t, db, "B1")

	now := time.Date(2024, 6, 1, 22, 0, 0, 0, time.UTC)
	seedInvoice(t, db, branch.ID, "01-2024-06-01-99", now.Add(-time.Minute))

	if got := nextNumber(t, db, branch.ID, now); got != "01-2024-06-01-100" {
		t.Fatalf("number = %q, want 01-2024-06-01-100", got)
	}
}

// The sequence is anchored on the branch row itself: concurrent creations
// serialize on its write lock (an invoice row cannot anchor the branch's
// first sale), so a missing branch is an error, not sequence 01.
func TestNextNumberRequiresBranchRow(t *testing.T) {
	db := testutil.OpenDB(t)

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := invoice.NextNumber(tx, 42, now)
		return err
	})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("unknown branch: got %v, want a not-found error", err)
	}
}

func TestNextNumberIsPerBranch(t *testing.T) {
	db := testutil.OpenDB(t)
	b1, _ := testutil.SeedBranch(t, db, "B1")
	b2, _ := testutil.SeedBranch(t, db, "B2")

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	seedInvoice(t, db, b1.ID, "01-2024-06-01-05", now.Add(-time.Hour))

	if got := nextNumber(t, db, b2.ID, now); got != "02-2024-06-01-01" {
		t.Fatalf("branch 2 number = %q, want 02-2024-06-01-01", got)
	}
	if got := nextNumber(t, db, b1.ID, now); got != "01-2024-06-01-06" {
		t.Fatalf("branch 1 number = %q, want 01-2024-06-01-06", got)
	}
}
