package inventory

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"pos-backend/internal/apperr"
	"pos-backend/internal/auth"
	"pos-backend/internal/database"
	"pos-backend/internal/ledger"
	"pos-backend/internal/models"
	"pos-backend/internal/web"
)

type ProductResponse struct {
	ID          uint            `json:"id"`
	UID         string          `json:"uid"`
	CategoryID  uint            `json:"category_id"`
	Category    string          `json:"category,omitempty"`
	Name        string          `json:"name"`
	CostPrice   decimal.Decimal `json:"cost_price"`
	SellPrice   decimal.Decimal `json:"sell_price"`
	Quantity    int64           `json:"quantity"`
	LowStockBar int64           `json:"low_stock_bar"`
	LowOnStock  bool            `json:"low_on_stock"`
	IsAvailable bool            `json:"is_available"`
}

func toProductResponse(p *models.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		UID:         p.UID.String(),
		CategoryID:  p.CategoryID,
		Category:    p.Category.Name,
		Name:        p.Name,
		CostPrice:   p.CostPrice,
		SellPrice:   p.SellPrice,
		Quantity:    p.Quantity,
		LowStockBar: p.LowStockBar,
		LowOnStock:  p.LowOnStock(),
		IsAvailable: p.IsAvailable,
	}
}

type CreateProductRequest struct {
	CategoryID  uint            `json:"category_id" validate:"required"`
	Name        string          `json:"name" validate:"required,min=1,max=100"`
	CostPrice   decimal.Decimal `json:"cost_price"`
	SellPrice   decimal.Decimal `json:"sell_price"`
	// OpeningStock seeds the ledger with an EDIT entry so day one is on the
	// books like every later movement.
	OpeningStock int64 `json:"opening_stock"`
	LowStockBar  int64 `json:"low_stock_bar"`
}

func categoryForUser(user *models.User, categoryID uint) (*models.ProductCategory, error) {
	var cat models.ProductCategory
	if err := database.DB.First(&cat, "id = ?", categoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("category")
		}
		return nil, err
	}
	if !user.Can().CanManageBranches && (user.BranchID == nil || cat.BranchID != *user.BranchID) {
		return nil, apperr.NotFound("category")
	}
	return &cat, nil
}

func validateProductPrices(cost, sell decimal.Decimal) error {
	fields := map[string]string{}
	if cost.IsNegative() {
		fields["cost_price"] = "must not be negative"
	}
	if sell.IsNegative() {
		fields["sell_price"] = "must not be negative"
	}
	if len(fields) == 0 && sell.LessThan(cost) {
		fields["sell_price"] = "must not be below cost price"
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

// GET /api/products
func ListProductsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		q := database.DB.Preload("Category").
			Joins("JOIN product_categories ON product_categories.id = products.category_id").
			Order("products.name ASC")
		if !user.Can().CanManageBranches {
			q = q.Where("product_categories.branch_id = ?", user.BranchID)
		} else if bid := c.QueryInt("branch_id"); bid > 0 {
			q = q.Where("product_categories.branch_id = ?", bid)
		}
		if c.Query("low_stock") == "true" {
			q = q.Where("products.quantity <= products.low_stock_bar")
		}

		var products []models.Product
		if err := q.Find(&products).Error; err != nil {
			return err
		}
		res := make([]ProductResponse, 0, len(products))
		for i := range products {
			res = append(res, toProductResponse(&products[i]))
		}
		return c.JSON(fiber.Map{"success": true, "data": res})
	}
}

// GET /api/products/:id
func GetProductHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
		}

		var p models.Product
		if err := database.DB.Preload("Category").First(&p, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("product")
			}
			return err
		}
		if !user.Can().CanManageBranches && (user.BranchID == nil || p.Category.BranchID != *user.BranchID) {
			return apperr.NotFound("product")
		}
		return c.JSON(fiber.Map{"success": true, "data": toProductResponse(&p)})
	}
}

// POST /api/products
func CreateProductHandler(engine *ledger.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		var body CreateProductRequest
		if err := web.BindAndValidate(c, &body); err != nil {
			return err
		}

		cat, err := categoryForUser(user, body.CategoryID)
		if err != nil {
			return err
		}
		name := strings.TrimSpace(body.Name)
		if name == "" {
			return apperr.Validation(map[string]string{"name": "must not be blank"})
		}
		if err := validateProductPrices(body.CostPrice, body.SellPrice); err != nil {
			return err
		}
		if body.OpeningStock < 0 {
			return apperr.Validation(map[string]string{"opening_stock": "must not be negative"})
		}

		// Product names are unique per branch, case-insensitively, across all
		// of the branch's categories.
		var clash models.Product
		err = database.DB.
			Joins("JOIN product_categories ON product_categories.id = products.category_id").
			Where("product_categories.branch_id = ? AND LOWER(products.name) = LOWER(?)", cat.BranchID, name).
			First(&clash).Error
		if err == nil {
			return apperr.Conflict("product %q already exists in this branch", name)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		p := models.Product{
			CategoryID:  cat.ID,
			Name:        name,
			CostPrice:   body.CostPrice,
			SellPrice:   body.SellPrice,
			LowStockBar: body.LowStockBar,
			IsAvailable: true,
		}
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
			if body.OpeningStock > 0 {
				_, err := engine.Post(tx, p.ID, models.ActivityEdit, body.OpeningStock, "opening stock", nil)
				return err
			}
			return nil
		})
		if err != nil {
			return err
		}

		var created models.Product
		if err := database.DB.Preload("Category").First(&created, "id = ?", p.ID).Error; err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": toProductResponse(&created)})
	}
}

type UpdateProductRequest struct {
	Name        *string          `json:"name"`
	CategoryID  *uint            `json:"category_id"`
	CostPrice   *decimal.Decimal `json:"cost_price"`
	SellPrice   *decimal.Decimal `json:"sell_price"`
	LowStockBar *int64           `json:"low_stock_bar"`
	IsAvailable *bool            `json:"is_available"`
}

// PATCH /api/products/:id
// Quantity is deliberately absent: stock only moves through the ledger.
func UpdateProductHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
		}
		var body UpdateProductRequest
		if err := web.BindAndValidate(c, &body); err != nil {
			return err
		}

		var p models.Product
		if err := database.DB.Preload("Category").First(&p, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("product")
			}
			return err
		}
		if !user.Can().CanManageBranches && (user.BranchID == nil || p.Category.BranchID != *user.BranchID) {
			return apperr.NotFound("product")
		}

		if body.CategoryID != nil && *body.CategoryID != p.CategoryID {
			newCat, err := categoryForUser(user, *body.CategoryID)
			if err != nil {
				return err
			}
			if newCat.BranchID != p.Category.BranchID {
				return apperr.Validation(map[string]string{"category_id": "cannot move a product across branches"})
			}
			p.CategoryID = newCat.ID
		}
		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return apperr.Validation(map[string]string{"name": "must not be blank"})
			}
			var clash models.Product
			err = database.DB.
				Joins("JOIN product_categories ON product_categories.id = products.category_id").
				Where("product_categories.branch_id = ? AND LOWER(products.name) = LOWER(?) AND products.id <> ?",
					p.Category.BranchID, name, p.ID).
				First(&clash).Error
			if err == nil {
				return apperr.Conflict("product %q already exists in this branch", name)
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			p.Name = name
		}

		cost, sell := p.CostPrice, p.SellPrice
		if body.CostPrice != nil {
			cost = *body.CostPrice
		}
		if body.SellPrice != nil {
			sell = *body.SellPrice
		}
		if err := validateProductPrices(cost, sell); err != nil {
			return err
		}
		p.CostPrice, p.SellPrice = cost, sell

		if body.LowStockBar != nil {
			if *body.LowStockBar < 0 {
				return apperr.Validation(map[string]string{"low_stock_bar": "must not be negative"})
			}
			p.LowStockBar = *body.LowStockBar
		}
		if body.IsAvailable != nil {
			p.IsAvailable = *body.IsAvailable
		}

		if err := database.DB.Save(&p).Error; err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": toProductResponse(&p)})
	}
}

// DELETE /api/products/:id
// Soft business delete: the row disappears from the catalog but invoice items
// keep their name snapshot, so history survives.
func DeleteProductHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
		}

		var p models.Product
		if err := database.DB.Preload("Category").First(&p, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("product")
			}
			return err
		}
		if !user.Can().CanManageBranches && (user.BranchID == nil || p.Category.BranchID != *user.BranchID) {
			return apperr.NotFound("product")
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			// Detach billing rows first so the FK does not block the delete.
			if err := tx.Model(&models.InvoiceItem{}).
				Where("product_id = ?", p.ID).
				Update("product_id", nil).Error; err != nil {
				return err
			}
			if err := tx.Where("product_id = ?", p.ID).Delete(&models.StockActivity{}).Error; err != nil {
				return err
			}
			return tx.Delete(&p).Error
		})
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "message": "product deleted"})
	}
}
