package inventory

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"pos-backend/internal/apperr"
	"pos-backend/internal/audit"
	"pos-backend/internal/auth"
	"pos-backend/internal/database"
	"pos-backend/internal/ledger"
	"pos-backend/internal/models"
	"pos-backend/internal/web"
)

type StockActivityResponse struct {
	ID                uint   `json:"id"`
	ProductID         uint   `json:"product_id"`
	Kind              string `json:"kind"`
	Change            int64  `json:"change"`
	ResultingQuantity int64  `json:"resulting_quantity"`
	InvoiceID         *uint  `json:"invoice_id"`
	Remarks           string `json:"remarks"`
	CreatedAt         string `json:"created_at"`
}

func toActivityResponse(a *models.StockActivity) StockActivityResponse {
	return StockActivityResponse{
		ID:                a.ID,
		ProductID:         a.ProductID,
		Kind:              string(a.Kind),
		Change:            a.Change,
		ResultingQuantity: a.ResultingQuantity,
		InvoiceID:         a.InvoiceID,
		Remarks:           a.Remarks,
		CreatedAt:         a.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func productForUser(user *models.User, productID uint) (*models.Product, error) {
	var p models.Product
	if err := database.DB.Preload("Category").First(&p, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("product")
		}
		return nil, err
	}
	if !user.Can().CanManageBranches && (user.BranchID == nil || p.Category.BranchID != *user.BranchID) {
		return nil, apperr.NotFound("product")
	}
	return &p, nil
}

type PostStockRequest struct {
	Kind    models.ActivityKind `json:"kind" validate:"required,oneof=ADD REDUCE EDIT"`
	Change  int64               `json:"change"`
	Remarks string              `json:"remarks" validate:"max=255"`
}

// POST /api/products/:id/stock
func PostStockHandler(engine *ledger.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
		}
		var body PostStockRequest
		if err := web.BindAndValidate(c, &body); err != nil {
			return err
		}

		p, err := productForUser(user, uint(id))
		if err != nil {
			return err
		}

		var activity *models.StockActivity
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			activity, err = engine.Post(tx, p.ID, body.Kind, body.Change, body.Remarks, nil)
			return err
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": toActivityResponse(activity)})
	}
}

// GET /api/products/:id/stock-history
func StockHistoryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
		}

		p, err := productForUser(user, uint(id))
		if err != nil {
			return err
		}

		activities, err := ledger.History(database.DB, p.ID)
		if err != nil {
			return err
		}
		res := make([]StockActivityResponse, 0, len(activities))
		for i := range activities {
			res = append(res, toActivityResponse(&activities[i]))
		}
		return c.JSON(fiber.Map{"success": true, "data": res})
	}
}

type CorrectStockRequest struct {
	Change int64 `json:"change"`
}

// PATCH /api/stock-activities/:id
// Rewrites a past ledger entry and replays everything after it, so every
// later resulting quantity and the product's cached total stay consistent.
func CorrectStockHandler(engine *ledger.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		if !user.Can().CanEditStockHistory {
			return apperr.Permission("role may not edit stock history")
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid activity id")
		}
		var body CorrectStockRequest
		if err := web.BindAndValidate(c, &body); err != nil {
			return err
		}

		var before models.StockActivity
		if err := database.DB.Preload("Product.Category").First(&before, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("stock activity")
			}
			return err
		}
		if !user.Can().CanManageBranches &&
			(user.BranchID == nil || before.Product.Category.BranchID != *user.BranchID) {
			return apperr.NotFound("stock activity")
		}

		finalQty, err := engine.Correct(database.DB, uint(id), body.Change)
		if err != nil {
			return err
		}

		audit.WriteLog(audit.LogOptions{
			BranchID:    &before.Product.Category.BranchID,
			UserID:      user.ID,
			UserName:    user.FullName,
			EntityType:  "stock_activity",
			EntityID:    before.ID,
			Action:      models.AuditActionCorrect,
			Description: "stock entry corrected for " + before.Product.Name,
			Before:      fiber.Map{"change": before.Change, "resulting_quantity": before.ResultingQuantity},
			After:       fiber.Map{"change": body.Change, "final_quantity": finalQty},
		})

		var after models.StockActivity
		if err := database.DB.First(&after, "id = ?", id).Error; err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"success": true,
			"data": fiber.Map{
				"activity":       toActivityResponse(&after),
				"final_quantity": finalQty,
			},
		})
	}
}
