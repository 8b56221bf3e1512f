package invoice

import (
	"errors"
	"time"

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

type CreateRequest struct {
	BranchID      *uint                `json:"branch_id"`
	CustomerID    *uint                `json:"customer_id"`
	FloorID       *uint                `json:"floor_id"`
	InvoiceType   models.InvoiceType   `json:"invoice_type"`
	Items         []ItemInput          `json:"items" validate:"required,min=1,dive"`
	TaxAmount     decimal.Decimal      `json:"tax_amount"`
	Discount      decimal.Decimal      `json:"discount"`
	PaidAmount    decimal.Decimal      `json:"paid_amount"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	Notes         string               `json:"notes"`
	Description   string               `json:"description"`
}

type ItemResponse struct {
	ProductID      *uint           `json:"product_id"`
	ProductName    string          `json:"product_name"`
	Quantity       int64           `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

type Response struct {
	ID            uint            `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceType   string          `json:"invoice_type"`
	BranchID      uint            `json:"branch_id"`
	BranchName    string          `json:"branch_name,omitempty"`
	CustomerID    *uint           `json:"customer_id"`
	CustomerName  string          `json:"customer_name,omitempty"`
	FloorID       *uint           `json:"floor_id"`
	FloorName     string          `json:"floor_name,omitempty"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Discount      decimal.Decimal `json:"discount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	DueAmount     decimal.Decimal `json:"due_amount"`
	PaymentStatus string          `json:"payment_status"`
	InvoiceStatus string          `json:"invoice_status"`
	Notes         string          `json:"notes"`
	Description   string          `json:"description"`
	CreatedBy     string          `json:"created_by,omitempty"`
	CreatedAt     string          `json:"created_at"`
	Items         []ItemResponse  `json:"items"`
}

func toResponse(inv *models.Invoice) Response {
	res := Response{
		ID:            inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		InvoiceType:   string(inv.InvoiceType),
		BranchID:      inv.BranchID,
		BranchName:    inv.Branch.Name,
		CustomerID:    inv.CustomerID,
		FloorID:       inv.FloorID,
		Subtotal:      inv.Subtotal,
		TaxAmount:     inv.TaxAmount,
		Discount:      inv.Discount,
		TotalAmount:   inv.TotalAmount,
		PaidAmount:    inv.PaidAmount,
		DueAmount:     inv.DueAmount(),
		PaymentStatus: string(inv.PaymentStatus),
		InvoiceStatus: string(inv.InvoiceStatus),
		Notes:         inv.Notes,
		Description:   inv.Description,
		CreatedAt:     inv.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if inv.Customer != nil {
		res.CustomerName = inv.Customer.Name
	}
	if inv.Floor != nil {
		res.FloorName = inv.Floor.Name
	}
	if inv.CreatedBy != nil {
		res.CreatedBy = inv.CreatedBy.FullName
	}
	for i := range inv.Items {
		it := &inv.Items[i]
		res.Items = append(res.Items, ItemResponse{
			ProductID:      it.ProductID,
			ProductName:    it.ProductName,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice,
			DiscountAmount: it.DiscountAmount,
			LineTotal:      it.LineTotal(),
		})
	}
	return res
}

func loadInvoice(id uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := database.DB.
		Preload("Items").
		Preload("Branch").
		Preload("Customer").
		Preload("Floor").
		Preload("CreatedBy").
		First(&inv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("invoice")
	}
	return &inv, err
}

// POST /api/invoices
func CreateHandler(composer *Composer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		var body CreateRequest
		if err := web.BindAndValidate(c, &body); err != nil {
			return err
		}

		branchID, err := auth.BranchScope(c, body.BranchID)
		if err != nil {
			return err
		}

		inv, err := composer.Create(database.DB, CreateInput{
			BranchID:      branchID,
			CustomerID:    body.CustomerID,
			FloorID:       body.FloorID,
			InvoiceType:   body.InvoiceType,
			Items:         body.Items,
			TaxAmount:     body.TaxAmount,
			Discount:      body.Discount,
			PaidAmount:    body.PaidAmount,
			PaymentMethod: body.PaymentMethod,
			Notes:         body.Notes,
			Description:   body.Description,
		}, user)
		if err != nil {
			return err
		}

		full, err := loadInvoice(inv.ID)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": toResponse(full)})
	}
}

// GET /api/invoices
// Floor staff see today's invoices of their branch, managers their whole
// branch, admins everything.
func ListHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		q := database.DB.
			Preload("Items").
			Preload("Branch").
			Preload("Customer").
			Preload("Floor").
			Preload("CreatedBy").
			Order("created_at DESC")

		switch {
		case user.Can().CanManageBranches:
			// chain-wide
		case user.Role == models.RoleBranchManager:
			q = q.Where("branch_id = ?", user.BranchID)
		default:
			today := time.Now().Format("2006-01-02")
			q = q.Where("branch_id = ? AND DATE(created_at) = ?", user.BranchID, today)
		}

		if status := c.Query("payment_status"); status != "" {
			q = q.Where("payment_status = ?", status)
		}

		var invoices []models.Invoice
		if err := q.Find(&invoices).Error; err != nil {
			return err
		}
		res := make([]Response, 0, len(invoices))
		for i := range invoices {
			res = append(res, toResponse(&invoices[i]))
		}
		return c.JSON(fiber.Map{"success": true, "data": res})
	}
}

// GET /api/invoices/:id
func GetHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid invoice id")
		}

		inv, err := loadInvoice(uint(id))
		if err != nil {
			return err
		}
		if !user.Can().CanManageBranches && (user.BranchID == nil || inv.BranchID != *user.BranchID) {
			return apperr.NotFound("invoice")
		}
		return c.JSON(fiber.Map{"success": true, "data": toResponse(inv)})
	}
}

type PatchRequest struct {
	Notes         *string               `json:"notes"`
	Description   *string               `json:"description"`
	InvoiceStatus *models.InvoiceStatus `json:"invoice_status"`
	// Elevated roles only; triggers a totals recompute.
	TaxAmount *decimal.Decimal `json:"tax_amount"`
	Discount  *decimal.Decimal `json:"discount"`
}

// PATCH /api/invoices/:id
func PatchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid invoice id")
		}
		var body PatchRequest
		if err := web.BindAndValidate(c, &body); err != nil {
			return err
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			var inv models.Invoice
			if err := database.LockForUpdate(tx).First(&inv, "id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperr.NotFound("invoice")
				}
				return err
			}
			if !user.Can().CanManageBranches && (user.BranchID == nil || inv.BranchID != *user.BranchID) {
				return apperr.NotFound("invoice")
			}

			// Settled invoices only accept cosmetic edits by elevated roles.
			if inv.Settled() {
				if !user.Can().CanManageBranches {
					return apperr.State("cannot modify a %s invoice", inv.PaymentStatus)
				}
				if body.TaxAmount != nil || body.Discount != nil || body.InvoiceStatus != nil {
					return apperr.State("only notes and description can change on a %s invoice", inv.PaymentStatus)
				}
			}

			if body.Notes != nil {
				inv.Notes = *body.Notes
			}
			if body.Description != nil {
				inv.Description = *body.Description
			}
			if body.InvoiceStatus != nil {
				inv.InvoiceStatus = *body.InvoiceStatus
			}
			if body.TaxAmount != nil || body.Discount != nil {
				if !user.Can().CanManageCatalog {
					return apperr.Permission("role may not change invoice amounts")
				}
				if body.TaxAmount != nil {
					if body.TaxAmount.IsNegative() {
						return apperr.Validation(map[string]string{"tax_amount": "must not be negative"})
					}
					inv.TaxAmount = *body.TaxAmount
				}
				if body.Discount != nil {
					if body.Discount.IsNegative() {
						return apperr.Validation(map[string]string{"discount": "must not be negative"})
					}
					inv.Discount = *body.Discount
				}
				inv.TotalAmount = inv.Subtotal.Add(inv.TaxAmount).Sub(inv.Discount)
				inv.PaymentStatus = models.DerivePaymentStatus(inv.PaidAmount, inv.TotalAmount, user.Role)
			}

			return tx.Save(&inv).Error
		})
		if err != nil {
			return err
		}

		full, err := loadInvoice(uint(id))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": toResponse(full)})
	}
}

type ReplaceItemsRequest struct {
	Items []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// PUT /api/invoices/:id/items
func ReplaceItemsHandler(composer *Composer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid invoice id")
		}
		var body ReplaceItemsRequest
		if err := web.BindAndValidate(c, &body); err != nil {
			return err
		}

		current, err := loadInvoice(uint(id))
		if err != nil {
			return err
		}
		if !user.Can().CanManageBranches && (user.BranchID == nil || current.BranchID != *user.BranchID) {
			return apperr.NotFound("invoice")
		}

		inv, err := composer.ReplaceItems(database.DB, uint(id), body.Items, user)
		if err != nil {
			return err
		}
		full, err := loadInvoice(inv.ID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": toResponse(full)})
	}
}

// POST /api/invoices/:id/cancel
func CancelHandler(composer *Composer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid invoice id")
		}

		before, err := loadInvoice(uint(id))
		if err != nil {
			return err
		}
		if !user.Can().CanManageBranches && (user.BranchID == nil || before.BranchID != *user.BranchID) {
			return apperr.NotFound("invoice")
		}
		inv, err := composer.Cancel(database.DB, uint(id), user)
		if err != nil {
			return err
		}

		audit.WriteLog(audit.LogOptions{
			BranchID:    &inv.BranchID,
			UserID:      user.ID,
			UserName:    user.FullName,
			EntityType:  "invoice",
			EntityID:    inv.ID,
			Action:      models.AuditActionCancel,
			Description: "invoice " + inv.InvoiceNumber + " cancelled",
			Before:      fiber.Map{"payment_status": before.PaymentStatus, "invoice_status": before.InvoiceStatus},
			After:       fiber.Map{"payment_status": inv.PaymentStatus, "invoice_status": inv.InvoiceStatus},
		})

		return c.JSON(fiber.Map{"success": true, "data": toResponse(inv)})
	}
}

// DELETE /api/invoices/:id
func DeleteHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		if !user.Can().CanCancelInvoice {
			return apperr.Permission("role may not delete invoices")
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid invoice id")
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			var inv models.Invoice
			if err := tx.First(&inv, "id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperr.NotFound("invoice")
				}
				return err
			}
			if !user.Can().CanManageBranches && (user.BranchID == nil || inv.BranchID != *user.BranchID) {
				return apperr.NotFound("invoice")
			}
			if inv.PaymentStatus == models.PaymentPaid {
				return apperr.State("cannot delete a paid invoice")
			}
			if err := tx.Where("invoice_id = ?", inv.ID).Delete(&models.Payment{}).Error; err != nil {
				return err
			}
			// The ledger keeps its sale debits; they just lose the reference.
			if err := tx.Model(&models.StockActivity{}).
				Where("invoice_id = ?", inv.ID).
				Update("invoice_id", nil).Error; err != nil {
				return err
			}
			if err := tx.Where("invoice_id = ?", inv.ID).Delete(&models.InvoiceItem{}).Error; err != nil {
				return err
			}
			return tx.Delete(&inv).Error
		})
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "message": "invoice deleted"})
	}
}
