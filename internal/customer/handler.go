package customer

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

type Response struct {
	ID        uint   `json:"id"`
	BranchID  uint   `json:"branch_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	CreatedAt string `json:"created_at"`
}

func toResponse(cu *models.Customer) Response {
	return Response{
		ID:        cu.ID,
		BranchID:  cu.BranchID,
		Name:      cu.Name,
		Phone:     cu.Phone,
		Email:     cu.Email,
		Address:   cu.Address,
		CreatedAt: cu.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

type CreateRequest struct {
	BranchID *uint  `json:"branch_id"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Phone    string `json:"phone" validate:"max=20"`
	Email    string `json:"email" validate:"omitempty,email"`
	Address  string `json:"address" validate:"max=255"`
}

// POST /api/customers
func CreateHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, err := auth.CurrentUser(c); err != nil {
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

		name := strings.TrimSpace(body.Name)
		if name == "" {
			return apperr.Validation(map[string]string{"name": "must not be blank"})
		}

		cu := models.Customer{
			BranchID: branchID,
			Name:     name,
			Phone:    strings.TrimSpace(body.Phone),
			Email:    strings.ToLower(strings.TrimSpace(body.Email)),
			Address:  strings.TrimSpace(body.Address),
		}
		if err := database.DB.Create(&cu).Error; err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": toResponse(&cu)})
	}
}

// GET /api/customers?search=
func ListHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		q := database.DB.Model(&models.Customer{}).Order("name ASC")
		if !user.Can().CanManageBranches {
			q = q.Where("branch_id = ?", user.BranchID)
		} else if bid := c.QueryInt("branch_id"); bid > 0 {
			q = q.Where("branch_id = ?", bid)
		}
		if search := strings.TrimSpace(c.Query("search")); search != "" {
			like := "%" + strings.ToLower(search) + "%"
			q = q.Where("LOWER(name) LIKE ? OR phone LIKE ?", like, "%"+search+"%")
		}

		var customers []models.Customer
		if err := q.Find(&customers).Error; err != nil {
			return err
		}
		res := make([]Response, 0, len(customers))
		for i := range customers {
			res = append(res, toResponse(&customers[i]))
		}
		return c.JSON(fiber.Map{"success": true, "data": res})
	}
}

func customerForUser(user *models.User, id uint) (*models.Customer, error) {
	var cu models.Customer
	if err := database.DB.First(&cu, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("customer")
		}
		return nil, err
	}
	if !user.Can().CanManageBranches && (user.BranchID == nil || cu.BranchID != *user.BranchID) {
		return nil, apperr.NotFound("customer")
	}
	return &cu, nil
}

// GET /api/customers/:id
func GetHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid customer id")
		}
		cu, err := customerForUser(user, uint(id))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": toResponse(cu)})
	}
}

type UpdateRequest struct {
	Name    *string `json:"name"`
	Phone   *string `json:"phone"`
	Email   *string `json:"email" validate:"omitempty,email"`
	Address *string `json:"address"`
}

// PATCH /api/customers/:id
func UpdateHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid customer id")
		}
		var body UpdateRequest
		if err := web.BindAndValidate(c, &body); err != nil {
			return err
		}

		cu, err := customerForUser(user, uint(id))
		if err != nil {
			return err
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return apperr.Validation(map[string]string{"name": "must not be blank"})
			}
			cu.Name = name
		}
		if body.Phone != nil {
			cu.Phone = strings.TrimSpace(*body.Phone)
		}
		if body.Email != nil {
			cu.Email = strings.ToLower(strings.TrimSpace(*body.Email))
		}
		if body.Address != nil {
			cu.Address = strings.TrimSpace(*body.Address)
		}

		if err := database.DB.Save(cu).Error; err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": toResponse(cu)})
	}
}

// DELETE /api/customers/:id
// Invoices keep a nullable customer reference, so the delete just detaches.
func DeleteHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid customer id")
		}
		cu, err := customerForUser(user, uint(id))
		if err != nil {
			return err
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Invoice{}).
				Where("customer_id = ?", cu.ID).
				Update("customer_id", nil).Error; err != nil {
				return err
			}
			return tx.Delete(cu).Error
		})
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "message": "customer deleted"})
	}
}
