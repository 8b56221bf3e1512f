package payment_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"pos-backend/internal/apperr"
	"pos-backend/internal/models"
	"pos-backend/internal/payment"
	"pos-backend/internal/testutil"
)

func money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// seedInvoice creates an invoice with the given totals, bypassing the
// composer: these tests exercise the payment ledger in isolation.
func seedInvoice(t *testing.T, db *gorm.DB, branchID uint, total string) *models.Invoice {
	t.Helper()
	inv := models.Invoice{
		BranchID:      branchID,
		InvoiceNumber: uuid.NewString()[:13],
		InvoiceType:   models.InvoiceTypeSale,
		Subtotal:      money(total),
		TotalAmount:   money(total),
		PaymentStatus: models.PaymentPending,
		InvoiceStatus: models.InvoicePending,
	}
	if err := db.Create(&inv).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return &inv
}

// Spec scenario: total 105.00; 50.00 -> PARTIAL due 55.00; 55.00 by a
// settlement-authorized role -> PAID due 0.00.
func TestAddPaymentProgression(t *testing.T) {
	db := testutil.OpenDB(t)
	branch, _ := testutil.SeedBranch(t, db, "B1")
	counter := testutil.SeedUser(t, db, branch.ID, models.RoleCounter)
	inv := seedInvoice(t, db, branch.ID, "105.00")
	ledger := &payment.Ledger{}

	pay, updated, err := ledger.Add(db, inv.ID, money("50.00"), models.MethodCash, "", counter)
	if err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if updated.PaymentStatus != models.PaymentPartial {
		t.Errorf("status = %s, want PARTIAL", updated.PaymentStatus)
	}
	if !updated.DueAmount().Equal(money("55.00")) {
		t.Errorf("due = %s, want 55.00", updated.DueAmount())
	}
	if pay.TransactionID == uuid.Nil {
		t.Errorf("payment missing transaction id")
	}

	_, updated, err = ledger.Add(db, inv.ID, money("55.00"), models.MethodCard, "", counter)
	if err != nil {
		t.Fatalf("second payment: %v", err)
	}
	if updated.PaymentStatus != models.PaymentPaid {
		t.Errorf("status = %s, want PAID", updated.PaymentStatus)
	}
	if !updated.DueAmount().IsZero() {
		t.Errorf("due = %s, want 0.00", updated.DueAmount())
	}

	// PAID is terminal for financial mutation.
	if _, _, err := ledger.Add(db, inv.ID, money("1.00"), models.MethodCash, "", counter); apperr.KindOf(err) != apperr.KindState {
		t.Errorf("payment on PAID err = %v, want StateError", err)
	}
}

func TestAddPaymentWaiterCannotSettle(t *testing.T) {
	db := testutil.OpenDB(t)
	branch, _ := testutil.SeedBranch(t, db, "B1")
	waiter := testutil.SeedUser(t, db, branch.ID, models.RoleWaiter)
	inv := seedInvoice(t, db, branch.ID, "40.00")
	ledger := &payment.Ledger{}

	_, updated, err := ledger.Add(db, inv.ID, money("40.00"), models.MethodCash, "", waiter)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if updated.PaymentStatus != models.PaymentPartial {
		t.Errorf("status = %s, want PARTIAL (waiter lacks settlement authority)", updated.PaymentStatus)
	}
	if updated.ReceivedByWaiterID == nil {
		t.Errorf("waiter bucket not recorded")
	}
}

func TestAddPaymentOverpaymentRejected(t *testing.T) {
	db := testutil.OpenDB(t)
	branch, _ := testutil.SeedBranch(t, db, "B1")
	counter := testutil.SeedUser(t, db, branch.ID, models.RoleCounter)
	inv := seedInvoice(t, db, branch.ID, "105.00")
	ledger := &payment.Ledger{}

	if _, _, err := ledger.Add(db, inv.ID, money("50.00"), models.MethodCash, "", counter); err != nil {
		t.Fatalf("setup payment: %v", err)
	}

	_, _, err := ledger.Add(db, inv.ID, money("60.00"), models.MethodCash, "", counter)
	if apperr.KindOf(err) != apperr.KindOverpayment {
		t.Fatalf("err = %v, want OverpaymentError", err)
	}

	var reloaded models.Invoice
	if err := db.First(&reloaded, "id = ?", inv.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.PaidAmount.Equal(money("50.00")) {
		t.Errorf("paid = %s, want 50.00 unchanged", reloaded.PaidAmount)
	}
	var count int64
	db.Model(&models.Payment{}).Where("invoice_id = ?", inv.ID).Count(&count)
	if count != 1 {
		t.Errorf("payment rows = %d, want 1", count)
	}
}

func TestHandoverConfirmation(t *testing.T) {
	db := testutil.OpenDB(t)
	branch, _ := testutil.SeedBranch(t, db, "B1")
	waiter := testutil.SeedUser(t, db, branch.ID, models.RoleWaiter)
	counter := testutil.SeedUser(t, db, branch.ID, models.RoleCounter)
	inv := seedInvoice(t, db, branch.ID, "80.00")
	ledger := &payment.Ledger{}

	// Zero amount before any waiter collection: plain validation failure.
	if _, _, err := ledger.Add(db, inv.ID, decimal.Zero, models.MethodCash, "", counter); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("premature handover err = %v, want ValidationError", err)
	}

	if _, _, err := ledger.Add(db, inv.ID, money("30.00"), models.MethodCash, "", waiter); err != nil {
		t.Fatalf("waiter collection: %v", err)
	}

	// Counter confirms the handover without an amount change.
	_, updated, err := ledger.Add(db, inv.ID, decimal.Zero, models.MethodCash, "cash handed over", counter)
	if err != nil {
		t.Fatalf("handover: %v", err)
	}
	if !updated.PaidAmount.Equal(money("30.00")) {
		t.Errorf("paid = %s, want 30.00 unchanged by handover", updated.PaidAmount)
	}
	if updated.ReceivedByCounterID == nil || *updated.ReceivedByCounterID != counter.ID {
		t.Errorf("counter bucket not recorded on handover")
	}

	// A second zero-amount confirmation is no longer eligible.
	if _, _, err := ledger.Add(db, inv.ID, decimal.Zero, models.MethodCash, "", counter); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("repeat handover err = %v, want ValidationError", err)
	}
}

func TestUpdatePaymentAllowList(t *testing.T) {
	db := testutil.OpenDB(t)
	branch, _ := testutil.SeedBranch(t, db, "B1")
	counter := testutil.SeedUser(t, db, branch.ID, models.RoleCounter)
	inv := seedInvoice(t, db, branch.ID, "20.00")
	ledger := &payment.Ledger{}

	pay, _, err := ledger.Add(db, inv.ID, money("10.00"), models.MethodCash, "", counter)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	card := models.MethodCard
	notes := "corrected method"
	updated, err := ledger.Update(db, pay.ID, payment.UpdateFields{PaymentMethod: &card, Notes: &notes}, counter)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.PaymentMethod != models.MethodCard || updated.Notes != notes {
		t.Errorf("update not applied: %+v", updated)
	}
	if !updated.Amount.Equal(money("10.00")) {
		t.Errorf("amount mutated by update")
	}

	// Settle, then updates must be blocked.
	if _, _, err := ledger.Add(db, inv.ID, money("10.00"), models.MethodCash, "", counter); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if _, err := ledger.Update(db, pay.ID, payment.UpdateFields{Notes: &notes}, counter); apperr.KindOf(err) != apperr.KindState {
		t.Errorf("update on PAID err = %v, want StateError", err)
	}
}

func TestUpdatePaymentScopedToBranch(t *testing.T) {
	db := testutil.OpenDB(t)
	branch, _ := testutil.SeedBranch(t, db, "B1")
	other, _ := testutil.SeedBranch(t, db, "B2")
	counter := testutil.SeedUser(t, db, branch.ID, models.RoleCounter)
	outsider := testutil.SeedUser(t, db, other.ID, models.RoleCounter)
	inv := seedInvoice(t, db, branch.ID, "20.00")
	ledger := &payment.Ledger{}

	pay, _, err := ledger.Add(db, inv.ID, money("10.00"), models.MethodCash, "", counter)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	// Staff of another branch must not learn the payment exists.
	notes := "tampered"
	if _, err := ledger.Update(db, pay.ID, payment.UpdateFields{Notes: &notes}, outsider); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("cross-branch update err = %v, want NotFound", err)
	}

	var reloaded models.Payment
	if err := db.First(&reloaded, "id = ?", pay.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Notes != "" || reloaded.PaymentMethod != models.MethodCash {
		t.Errorf("payment mutated by cross-branch update: %+v", reloaded)
	}
}

func TestDeletePaymentRefunds(t *testing.T) {
	db := testutil.OpenDB(t)
	branch, _ := testutil.SeedBranch(t, db, "B1")
	counter := testutil.SeedUser(t, db, branch.ID, models.RoleCounter)
	inv := seedInvoice(t, db, branch.ID, "60.00")
	ledger := &payment.Ledger{}

	first, _, err := ledger.Add(db, inv.ID, money("20.00"), models.MethodCash, "", counter)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, _, err := ledger.Add(db, inv.ID, money("40.00"), models.MethodCard, "", counter)
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	// Refund one: PAID regresses to PARTIAL, the sanctioned exception.
	updated, err := ledger.Delete(db, second.ID)
	if err != nil {
		t.Fatalf("delete second: %v", err)
	}
	if updated.PaymentStatus != models.PaymentPartial || !updated.PaidAmount.Equal(money("20.00")) {
		t.Errorf("after first refund: status %s paid %s, want PARTIAL 20.00", updated.PaymentStatus, updated.PaidAmount)
	}

	// Refund the rest: back to PENDING at zero.
	updated, err = ledger.Delete(db, first.ID)
	if err != nil {
		t.Fatalf("delete first: %v", err)
	}
	if updated.PaymentStatus != models.PaymentPending || !updated.PaidAmount.IsZero() {
		t.Errorf("after full refund: status %s paid %s, want PENDING 0", updated.PaymentStatus, updated.PaidAmount)
	}

	var count int64
	db.Model(&models.Payment{}).Where("invoice_id = ?", inv.ID).Count(&count)
	if count != 0 {
		t.Errorf("payment rows = %d, want 0", count)
	}

	if _, err := ledger.Delete(db, first.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("double delete err = %v, want NotFound", err)
	}
}
