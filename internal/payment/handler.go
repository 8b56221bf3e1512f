package payment

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"pos-backend/internal/apperr"
	"pos-backend/internal/audit"
	"pos-backend/internal/auth"
	"pos-backend/internal/database"
	"pos-backend/internal/models"
	"pos-backend/internal/web"
)

type AddRequest struct {
	Amount        decimal.Decimal      `json:"amount"`
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"required,oneof=CASH CARD MOBILE"`
	Notes         string               `json:"notes"`
}

type Response struct {
	ID            uint            `json:"id"`
	InvoiceID     uint            `json:"invoice_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Notes         string          `json:"notes"`
	ReceivedBy    string          `json:"received_by,omitempty"`
	CreatedAt     string          `json:"created_at"`
}

func toResponse(p *models.Payment) Response {
	res := Response{
		ID:            p.ID,
		InvoiceID:     p.InvoiceID,
		TransactionID: p.TransactionID.String(),
		Amount:        p.Amount,
		PaymentMethod: string(p.PaymentMethod),
		Notes:         p.Notes,
		CreatedAt:     p.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if p.ReceivedBy != nil {
		res.ReceivedBy = p.ReceivedBy.FullName
	}
	return res
}

func branchVisible(user *models.User, branchID uint) bool {
	if user.Can().CanManageBranches {
		return true
	}
	return user.BranchID != nil && *user.BranchID == branchID
}

// POST /api/invoices/:id/payments
func AddHandler(ledger *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		invoiceID, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid invoice id")
		}
		var body AddRequest
		if err := web.BindAndValidate(c, &body); err != nil {
			return err
		}

		var target models.Invoice
		if err := database.DB.First(&target, "id = ?", invoiceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("invoice")
			}
			return err
		}
		if !branchVisible(user, target.BranchID) {
			return apperr.NotFound("invoice")
		}

		pay, inv, err := ledger.Add(database.DB, uint(invoiceID), body.Amount, body.PaymentMethod, body.Notes, user)
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"success": true,
			"data": fiber.Map{
				"payment":        toResponse(pay),
				"invoice_id":     inv.ID,
				"paid_amount":    inv.PaidAmount,
				"due_amount":     inv.DueAmount(),
				"payment_status": inv.PaymentStatus,
			},
		})
	}
}

// GET /api/invoices/:id/payments
func ListByInvoiceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		invoiceID, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid invoice id")
		}

		var inv models.Invoice
		if err := database.DB.First(&inv, "id = ?", invoiceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("invoice")
			}
			return err
		}
		if !branchVisible(user, inv.BranchID) {
			return apperr.NotFound("invoice")
		}

		var payments []models.Payment
		if err := database.DB.
			Preload("ReceivedBy").
			Where("invoice_id = ?", inv.ID).
			Order("created_at ASC").
			Find(&payments).Error; err != nil {
			return err
		}

		res := make([]Response, 0, len(payments))
		for i := range payments {
			res = append(res, toResponse(&payments[i]))
		}
		return c.JSON(fiber.Map{"success": true, "data": res})
	}
}

// GET /api/payments/:id
func GetHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payment id")
		}

		var p models.Payment
		err = database.DB.Preload("ReceivedBy").Preload("Invoice").First(&p, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("payment")
		}
		if err != nil {
			return err
		}
		if !branchVisible(user, p.Invoice.BranchID) {
			return apperr.NotFound("payment")
		}
		return c.JSON(fiber.Map{"success": true, "data": toResponse(&p)})
	}
}

type PatchRequest struct {
	PaymentMethod *models.PaymentMethod `json:"payment_method" validate:"omitempty,oneof=CASH CARD MOBILE"`
	Notes         *string               `json:"notes"`
}

// PATCH /api/payments/:id
func PatchHandler(ledger *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payment id")
		}
		var body PatchRequest
		if err := web.BindAndValidate(c, &body); err != nil {
			return err
		}

		p, err := ledger.Update(database.DB, uint(id), UpdateFields{
			PaymentMethod: body.PaymentMethod,
			Notes:         body.Notes,
		}, user)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": toResponse(p)})
	}
}

// DELETE /api/payments/:id
// A delete is a refund: the invoice's paid total shrinks and its payment
// status is re-derived, so this stays behind the refund capability.
func DeleteHandler(ledger *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		if !user.Can().CanRefundPayments {
			return apperr.Permission("role may not refund payments")
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payment id")
		}

		var before models.Payment
		if err := database.DB.Preload("Invoice").First(&before, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("payment")
			}
			return err
		}

		inv, err := ledger.Delete(database.DB, uint(id))
		if err != nil {
			return err
		}

		audit.WriteLog(audit.LogOptions{
			BranchID:    &before.Invoice.BranchID,
			UserID:      user.ID,
			UserName:    user.FullName,
			EntityType:  "payment",
			EntityID:    before.ID,
			Action:      models.AuditActionRefund,
			Description: "payment " + before.TransactionID.String() + " refunded",
			Before:      fiber.Map{"amount": before.Amount, "invoice_id": before.InvoiceID},
			After:       fiber.Map{"paid_amount": inv.PaidAmount, "payment_status": inv.PaymentStatus},
		})

		return c.JSON(fiber.Map{
			"success": true,
			"data": fiber.Map{
				"invoice_id":     inv.ID,
				"paid_amount":    inv.PaidAmount,
				"due_amount":     inv.DueAmount(),
				"payment_status": inv.PaymentStatus,
			},
		})
	}
}
