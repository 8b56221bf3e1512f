// Package payment applies payments and refunds to invoices and keeps the
// paid amount and payment status consistent with them.
package payment

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"pos-backend/internal/apperr"
	"pos-backend/internal/database"
	"pos-backend/internal/models"
)

type Ledger struct{}

// Record creates the payment row and applies its effect to the invoice
// struct in memory: paid amount and the role-derived collection bucket
// (waiter at the table vs counter). The caller persists the invoice and
// derives the final payment status inside its own transaction.
func (l *Ledger) Record(tx *gorm.DB, inv *models.Invoice, amount decimal.Decimal, method models.PaymentMethod, notes string, actor *models.User) (*models.Payment, error) {
	pay := models.Payment{
		InvoiceID:     inv.ID,
		Amount:        amount,
		PaymentMethod: method,
		Notes:         notes,
	}
	if actor != nil {
		pay.ReceivedByID = &actor.ID
	}
	if err := tx.Create(&pay).Error; err != nil {
		return nil, err
	}

	inv.PaidAmount = inv.PaidAmount.Add(amount)
	if actor != nil {
		if actor.Role == models.RoleWaiter {
			inv.ReceivedByWaiterID = &actor.ID
		} else {
			inv.ReceivedByCounterID = &actor.ID
		}
	}
	return &pay, nil
}

// Add validates and applies a payment against an existing invoice in one
// transaction. A zero amount is accepted only as a handover confirmation:
// the invoice is PARTIAL, a waiter collection is on record and no counter
// collection is yet. It marks cash changing hands, not money owed.
func (l *Ledger) Add(db *gorm.DB, invoiceID uint, amount decimal.Decimal, method models.PaymentMethod, notes string, actor *models.User) (*models.Payment, *models.Invoice, error) {
	var pay *models.Payment
	var inv models.Invoice

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := database.LockForUpdate(tx).First(&inv, "id = ?", invoiceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("invoice")
			}
			return err
		}

		if inv.Settled() {
			return apperr.State("cannot add a payment to a %s invoice", inv.PaymentStatus)
		}
		if amount.IsNegative() {
			return apperr.Validation(map[string]string{"amount": "must not be negative"})
		}

		isHandover := amount.IsZero() &&
			inv.PaymentStatus == models.PaymentPartial &&
			inv.ReceivedByWaiterID != nil &&
			inv.ReceivedByCounterID == nil

		if amount.IsZero() && !isHandover {
			return apperr.Validation(map[string]string{"amount": "must be greater than 0"})
		}
		if !isHandover {
			if due := inv.DueAmount(); amount.GreaterThan(due) {
				return apperr.Overpayment("cannot pay more than the due amount, max allowed: %s", due.StringFixed(2))
			}
		}

		var err error
		pay, err = l.Record(tx, &inv, amount, method, notes, actor)
		if err != nil {
			return err
		}

		role := models.UserRole("")
		if actor != nil {
			role = actor.Role
		}
		inv.PaymentStatus = models.DerivePaymentStatus(inv.PaidAmount, inv.TotalAmount, role)

		return tx.Save(&inv).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return pay, &inv, nil
}

// UpdateFields is the patch allow-list for an existing payment.
type UpdateFields struct {
	PaymentMethod *models.PaymentMethod
	Notes         *string
}

// Update patches a payment's method or notes for an actor who can see the
// payment's branch. Anything financial (amount, transaction id, invoice) is
// immutable, and nothing may change once the parent invoice is PAID or
// CANCELLED.
func (l *Ledger) Update(db *gorm.DB, paymentID uint, fields UpdateFields, actor *models.User) (*models.Payment, error) {
	var pay models.Payment

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Invoice").First(&pay, "id = ?", paymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("payment")
			}
			return err
		}
		if actor != nil && !actor.Can().CanManageBranches &&
			(actor.BranchID == nil || pay.Invoice.BranchID != *actor.BranchID) {
			return apperr.NotFound("payment")
		}
		if pay.Invoice.Settled() {
			return apperr.State("cannot modify a payment on a %s invoice", pay.Invoice.PaymentStatus)
		}

		if fields.PaymentMethod != nil {
			pay.PaymentMethod = *fields.PaymentMethod
		}
		if fields.Notes != nil {
			pay.Notes = *fields.Notes
		}
		return tx.Save(&pay).Error
	})
	if err != nil {
		return nil, err
	}
	return &pay, nil
}

// Delete refunds a payment: the invoice's paid amount drops by the refunded
// amount (clamped at zero), the status is re-derived and the payment row is
// removed, all in one transaction.
func (l *Ledger) Delete(db *gorm.DB, paymentID uint) (*models.Invoice, error) {
	var inv models.Invoice

	err := db.Transaction(func(tx *gorm.DB) error {
		var pay models.Payment
		if err := tx.First(&pay, "id = ?", paymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("payment")
			}
			return err
		}
		if err := database.LockForUpdate(tx).First(&inv, "id = ?", pay.InvoiceID).Error; err != nil {
			return err
		}
		// Refunds are the one sanctioned way back from PAID; a cancelled
		// invoice stays frozen.
		if inv.PaymentStatus == models.PaymentCancelled {
			return apperr.State("cannot refund a payment on a cancelled invoice")
		}

		inv.PaidAmount = inv.PaidAmount.Sub(pay.Amount)
		if !inv.PaidAmount.IsPositive() {
			inv.PaidAmount = decimal.Zero
			inv.PaymentStatus = models.PaymentPending
		} else {
			inv.PaymentStatus = models.PaymentPartial
		}

		if err := tx.Save(&inv).Error; err != nil {
			return err
		}
		return tx.Delete(&pay).Error
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
