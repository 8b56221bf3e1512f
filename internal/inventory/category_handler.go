package inventory

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"pos-backend/internal/apperr"
	"pos-backend/internal/auth"
	"pos-backend/internal/database"
	"pos-backend/internal/models"
	"pos-backend/internal/web"
)

type CategoryResponse struct {
	ID       uint   `json:"id"`
	BranchID uint   `json:"branch_id"`
	Name     string `json:"name"`
	Products int    `json:"product_count"`
}

type CreateCategoryRequest struct {
	BranchID *uint  `json:"branch_id"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
}

// GET /api/categories
func ListCategoriesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		q := database.DB.Preload("Products").Order("name ASC")
		if !user.Can().CanManageBranches {
			q = q.Where("branch_id = ?", user.BranchID)
		} else if bid := c.QueryInt("branch_id"); bid > 0 {
			q = q.Where("branch_id = ?", bid)
		}

		var categories []models.ProductCategory
		if err := q.Find(&categories).Error; err != nil {
			return err
		}
		res := make([]CategoryResponse, 0, len(categories))
		for _, cat := range categories {
			res = append(res, CategoryResponse{
				ID:       cat.ID,
				BranchID: cat.BranchID,
				Name:     cat.Name,
				Products: len(cat.Products),
			})
		}
		return c.JSON(fiber.Map{"success": true, "data": res})
	}
}

// POST /api/categories
func CreateCategoryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		_, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		var body CreateCategoryRequest
		if err := web.BindAndValidate(c, &body); err != nil {
			return err
		}
		branchID, err := auth.BranchScope(c, body.BranchID)
		if err != nil {
			return err
		}

		name := strings.TrimSpace(body.Name)
		if name == "" {
			return apperr.Validation(map[string]string{"name": "must not be blank"})
		}

		// Names are unique per branch, case-insensitively.
		var existing models.ProductCategory
		err = database.DB.
			Where("branch_id = ? AND LOWER(name) = LOWER(?)", branchID, name).
			First(&existing).Error
		if err == nil {
			return apperr.Conflict("category %q already exists in this branch", name)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		cat := models.ProductCategory{BranchID: branchID, Name: name}
		if err := database.DB.Create(&cat).Error; err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": CategoryResponse{
			ID:       cat.ID,
			BranchID: cat.BranchID,
			Name:     cat.Name,
		}})
	}
}

type UpdateCategoryRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// PUT /api/categories/:id
func UpdateCategoryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid category id")
		}
		var body UpdateCategoryRequest
		if err := web.BindAndValidate(c, &body); err != nil {
			return err
		}

		var cat models.ProductCategory
		if err := database.DB.First(&cat, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("category")
			}
			return err
		}
		if !user.Can().CanManageBranches && (user.BranchID == nil || cat.BranchID != *user.BranchID) {
			return apperr.NotFound("category")
		}

		name := strings.TrimSpace(body.Name)
		var clash models.ProductCategory
		err = database.DB.
			Where("branch_id = ? AND LOWER(name) = LOWER(?) AND id <> ?", cat.BranchID, name, cat.ID).
			First(&clash).Error
		if err == nil {
			return apperr.Conflict("category %q already exists in this branch", name)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		cat.Name = name
		if err := database.DB.Save(&cat).Error; err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": CategoryResponse{
			ID:       cat.ID,
			BranchID: cat.BranchID,
			Name:     cat.Name,
		}})
	}
}

// DELETE /api/categories/:id
func DeleteCategoryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid category id")
		}

		var cat models.ProductCategory
		if err := database.DB.First(&cat, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("category")
			}
			return err
		}
		if !user.Can().CanManageBranches && (user.BranchID == nil || cat.BranchID != *user.BranchID) {
			return apperr.NotFound("category")
		}

		var productCount int64
		if err := database.DB.Model(&models.Product{}).Where("category_id = ?", cat.ID).Count(&productCount).Error; err != nil {
			return err
		}
		if productCount > 0 {
			return apperr.Conflict("category still has %d products", productCount)
		}

		if err := database.DB.Delete(&cat).Error; err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "message": "category deleted"})
	}
}
