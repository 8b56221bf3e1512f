package admin

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"pos-backend/internal/apperr"
	"pos-backend/internal/database"
	"pos-backend/internal/models"
	"pos-backend/internal/web"
)

type BranchResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	Phone     string `json:"phone"`
	CreatedAt string `json:"created_at"`
}

func toBranchResponse(b *models.Branch) BranchResponse {
	return BranchResponse{
		ID:        b.ID,
		Name:      b.Name,
		Location:  b.Location,
		Phone:     b.Phone,
		CreatedAt: b.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

type CreateBranchRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Location string `json:"location" validate:"max=255"`
	Phone    string `json:"phone" validate:"max=50"`
}

// POST /api/branches
func CreateBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateBranchRequest
		if err := web.BindAndValidate(c, &body); err != nil {
			return err
		}

		name := strings.TrimSpace(body.Name)
		if name == "" {
			return apperr.Validation(map[string]string{"name": "must not be blank"})
		}

		var existing models.Branch
		err := database.DB.Where("LOWER(name) = LOWER(?)", name).First(&existing).Error
		if err == nil {
			return apperr.Conflict("branch %q already exists", name)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		branch := models.Branch{
			Name:     name,
			Location: strings.TrimSpace(body.Location),
			Phone:    strings.TrimSpace(body.Phone),
		}
		if err := database.DB.Create(&branch).Error; err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": toBranchResponse(&branch)})
	}
}

// GET /api/branches
func ListBranchesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var branches []models.Branch
		if err := database.DB.Order("name ASC").Find(&branches).Error; err != nil {
			return err
		}
		res := make([]BranchResponse, 0, len(branches))
		for i := range branches {
			res = append(res, toBranchResponse(&branches[i]))
		}
		return c.JSON(fiber.Map{"success": true, "data": res})
	}
}

// GET /api/branches/:id
func GetBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid branch id")
		}
		var branch models.Branch
		if err := database.DB.First(&branch, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("branch")
			}
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": toBranchResponse(&branch)})
	}
}

type UpdateBranchRequest struct {
	Name     *string `json:"name"`
	Location *string `json:"location"`
	Phone    *string `json:"phone"`
}

// PATCH /api/branches/:id
func UpdateBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid branch id")
		}
		var branch models.Branch
		if err := database.DB.First(&branch, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("branch")
			}
			return err
		}

		var body UpdateBranchRequest
		if err := web.BindAndValidate(c, &body); err != nil {
			return err
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return apperr.Validation(map[string]string{"name": "must not be blank"})
			}
			var clash models.Branch
			err := database.DB.Where("LOWER(name) = LOWER(?) AND id <> ?", name, branch.ID).First(&clash).Error
			if err == nil {
				return apperr.Conflict("branch %q already exists", name)
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			branch.Name = name
		}
		if body.Location != nil {
			branch.Location = strings.TrimSpace(*body.Location)
		}
		if body.Phone != nil {
			branch.Phone = strings.TrimSpace(*body.Phone)
		}

		if err := database.DB.Save(&branch).Error; err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": toBranchResponse(&branch)})
	}
}

// DELETE /api/branches/:id
// A branch that still owns staff or catalog data cannot be removed; the
// operator has to move or delete those first.
func DeleteBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid branch id")
		}
		var branch models.Branch
		if err := database.DB.First(&branch, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("branch")
			}
			return err
		}

		var users int64
		if err := database.DB.Model(&models.User{}).Where("branch_id = ?", branch.ID).Count(&users).Error; err != nil {
			return err
		}
		if users > 0 {
			return apperr.Conflict("branch still has %d staff accounts", users)
		}
		var categories int64
		if err := database.DB.Model(&models.ProductCategory{}).Where("branch_id = ?", branch.ID).Count(&categories).Error; err != nil {
			return err
		}
		if categories > 0 {
			return apperr.Conflict("branch still has %d product categories", categories)
		}

		if err := database.DB.Delete(&branch).Error; err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "message": "branch deleted"})
	}
}
