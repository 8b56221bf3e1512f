// Package invoice creates and mutates invoices: atomic line-item posting,
// per-branch sequential numbering, totals and payment-status derivation.
package invoice

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"pos-backend/internal/apperr"
	"pos-backend/internal/database"
	"pos-backend/internal/ledger"
	"pos-backend/internal/models"
	"pos-backend/internal/notify"
	"pos-backend/internal/payment"
)

type Composer struct {
	Ledger   *ledger.Engine
	Payments *payment.Ledger
	// Notifier receives a snapshot after commit; nil disables notification.
	Notifier notify.Sink
}

type ItemInput struct {
	ProductID      uint            `json:"product_id"`
	Quantity       int64           `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

type CreateInput struct {
	BranchID      uint
	CustomerID    *uint
	FloorID       *uint
	InvoiceType   models.InvoiceType
	Items         []ItemInput
	TaxAmount     decimal.Decimal
	Discount      decimal.Decimal
	PaidAmount    decimal.Decimal
	PaymentMethod models.PaymentMethod
	Notes         string
	Description   string
}

// validateItems checks every line against the branch-scoped catalog and
// reports all offending items at once, not just the first.
func validateItems(tx *gorm.DB, branchID uint, items []ItemInput) (map[uint]*models.Product, error) {
	fields := map[string]string{}
	if len(items) == 0 {
		fields["items"] = "at least one item is required"
		return nil, apperr.Validation(fields)
	}

	products := make(map[uint]*models.Product, len(items))
	for i, item := range items {
		key := fmt.Sprintf("items[%d]", i)
		if item.Quantity <= 0 {
			fields[key+".quantity"] = "must be greater than 0"
		}
		if item.UnitPrice.IsNegative() {
			fields[key+".unit_price"] = "must not be negative"
		}
		if item.DiscountAmount.IsNegative() {
			fields[key+".discount_amount"] = "must not be negative"
		}

		if _, seen := products[item.ProductID]; seen {
			continue
		}
		var product models.Product
		err := tx.Joins("Category").First(&product, "products.id = ?", item.ProductID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			fields[key+".product_id"] = "unknown product"
		case err != nil:
			return nil, err
		case product.Category.BranchID != branchID:
			fields[key+".product_id"] = "product belongs to another branch"
		default:
			products[item.ProductID] = &product
		}
	}

	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}
	return products, nil
}

// Create builds the invoice as one atomic unit: skeleton row, initial
// payment, branch-sequential number, items with their stock debits, totals
// and the derived payment status. Any failure rolls the whole thing back.
// Notification happens after commit and never fails the sale.
func (c *Composer) Create(db *gorm.DB, in CreateInput, actor *models.User) (*models.Invoice, error) {
	if actor == nil || !actor.Can().CanCreateInvoice {
		return nil, apperr.Permission("role is not allowed to create invoices")
	}
	if in.TaxAmount.IsNegative() || in.Discount.IsNegative() || in.PaidAmount.IsNegative() {
		return nil, apperr.Validation(map[string]string{"amounts": "tax, discount and paid amount must not be negative"})
	}

	var inv models.Invoice

	err := db.Transaction(func(tx *gorm.DB) error {
		var branch models.Branch
		if err := tx.First(&branch, "id = ?", in.BranchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("branch")
			}
			return err
		}
		if in.CustomerID != nil {
			var customer models.Customer
			if err := tx.First(&customer, "id = ? AND branch_id = ?", *in.CustomerID, in.BranchID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperr.NotFound("customer")
				}
				return err
			}
		}
		if in.FloorID != nil {
			var floor models.Floor
			if err := tx.First(&floor, "id = ? AND branch_id = ?", *in.FloorID, in.BranchID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperr.NotFound("floor")
				}
				return err
			}
		}

		products, err := validateItems(tx, in.BranchID, in.Items)
		if err != nil {
			return err
		}

		invoiceType := in.InvoiceType
		if invoiceType == "" {
			invoiceType = models.InvoiceTypeSale
		}
		method := in.PaymentMethod
		if method == "" {
			method = models.MethodCash
		}

		inv = models.Invoice{
			BranchID:      in.BranchID,
			CustomerID:    in.CustomerID,
			FloorID:       in.FloorID,
			InvoiceType:   invoiceType,
			PaymentStatus: models.PaymentPending,
			InvoiceStatus: models.InvoicePending,
			CreatedByID:   &actor.ID,
			Notes:         in.Notes,
			Description:   in.Description,
		}

		// The number lookup and the insert share this transaction; the
		// lock inside NextNumber closes the duplicate-number race.
		inv.InvoiceNumber, err = NextNumber(tx, in.BranchID, time.Now())
		if err != nil {
			return err
		}
		if err := tx.Create(&inv).Error; err != nil {
			return err
		}

		if in.PaidAmount.IsPositive() {
			if _, err := c.Payments.Record(tx, &inv, in.PaidAmount, method, "initial payment during invoice creation", actor); err != nil {
				return err
			}
		}

		subtotal := decimal.Zero
		for _, itemIn := range in.Items {
			product := products[itemIn.ProductID]
			item := models.InvoiceItem{
				InvoiceID:      inv.ID,
				ProductID:      &product.ID,
				ProductName:    product.Name,
				Quantity:       itemIn.Quantity,
				UnitPrice:      itemIn.UnitPrice,
				DiscountAmount: itemIn.DiscountAmount,
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			inv.Items = append(inv.Items, item)

			if _, err := c.Ledger.Post(tx, product.ID, models.ActivityReduce, itemIn.Quantity,
				fmt.Sprintf("sale on invoice %s", inv.InvoiceNumber), &inv.ID); err != nil {
				return err
			}

			subtotal = subtotal.Add(item.LineTotal())
		}

		inv.Subtotal = subtotal
		inv.TotalAmount = subtotal.Add(in.TaxAmount).Sub(in.Discount)
		inv.TaxAmount = in.TaxAmount
		inv.Discount = in.Discount
		inv.PaymentStatus = models.DerivePaymentStatus(inv.PaidAmount, inv.TotalAmount, actor.Role)

		return tx.Save(&inv).Error
	})
	if err != nil {
		return nil, err
	}

	c.notifyCreated(&inv)
	return &inv, nil
}

// notifyCreated pushes the post-commit snapshot. Failures are logged only,
// since a committed invoice must never be undone by a display problem.
func (c *Composer) notifyCreated(inv *models.Invoice) {
	if c.Notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("invoice", inv.InvoiceNumber).Errorf("notification sink panicked: %v", r)
		}
	}()
	c.Notifier.InvoiceCreated(notify.Snapshot(inv))
}

// ReplaceItems swaps an invoice's entire item set and recomputes totals and
// payment status. Stock debited by the original items is not reversed or
// replayed here; the ledger keeps the original sale entries as posted.
func (c *Composer) ReplaceItems(db *gorm.DB, invoiceID uint, items []ItemInput, actor *models.User) (*models.Invoice, error) {
	var inv models.Invoice

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := database.LockForUpdate(tx).First(&inv, "id = ?", invoiceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("invoice")
			}
			return err
		}
		if inv.Settled() {
			return apperr.State("cannot modify a %s invoice", inv.PaymentStatus)
		}

		products, err := validateItems(tx, inv.BranchID, items)
		if err != nil {
			return err
		}

		if err := tx.Where("invoice_id = ?", inv.ID).Delete(&models.InvoiceItem{}).Error; err != nil {
			return err
		}

		subtotal := decimal.Zero
		inv.Items = nil
		for _, itemIn := range items {
			product := products[itemIn.ProductID]
			item := models.InvoiceItem{
				InvoiceID:      inv.ID,
				ProductID:      &product.ID,
				ProductName:    product.Name,
				Quantity:       itemIn.Quantity,
				UnitPrice:      itemIn.UnitPrice,
				DiscountAmount: itemIn.DiscountAmount,
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			inv.Items = append(inv.Items, item)
			subtotal = subtotal.Add(item.LineTotal())
		}

		inv.Subtotal = subtotal
		inv.TotalAmount = subtotal.Add(inv.TaxAmount).Sub(inv.Discount)
		inv.PaymentStatus = models.DerivePaymentStatus(inv.PaidAmount, inv.TotalAmount, actor.Role)

		return tx.Save(&inv).Error
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// Cancel is a dead end: no further payments, edits or stock reversal.
func (c *Composer) Cancel(db *gorm.DB, invoiceID uint, actor *models.User) (*models.Invoice, error) {
	if actor == nil || !actor.Can().CanCancelInvoice {
		return nil, apperr.Permission("role is not allowed to cancel invoices")
	}

	var inv models.Invoice
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := database.LockForUpdate(tx).First(&inv, "id = ?", invoiceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("invoice")
			}
			return err
		}
		if inv.Settled() {
			return apperr.State("invoice is already %s", inv.PaymentStatus)
		}

		inv.PaymentStatus = models.PaymentCancelled
		inv.InvoiceStatus = models.InvoiceCancelled
		return tx.Save(&inv).Error
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
