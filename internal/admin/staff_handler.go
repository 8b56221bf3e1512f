package admin

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"pos-backend/internal/apperr"
	"pos-backend/internal/auth"
	"pos-backend/internal/database"
	"pos-backend/internal/models"
	"pos-backend/internal/web"
)

type StaffResponse struct {
	ID        uint   `json:"id"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
	BranchID  *uint  `json:"branch_id"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

func toStaffResponse(u *models.User) StaffResponse {
	return StaffResponse{
		ID:        u.ID,
		FullName:  u.FullName,
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      string(u.Role),
		BranchID:  u.BranchID,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

type CreateStaffRequest struct {
	FullName string          `json:"full_name" validate:"required,min=1,max=100"`
	Email    string          `json:"email" validate:"required,email"`
	Phone    string          `json:"phone" validate:"max=20"`
	Password string          `json:"password" validate:"required,min=8"`
	Role     models.UserRole `json:"role" validate:"required"`
	BranchID *uint           `json:"branch_id"`
}

// Staff management covers the non-admin roles. Admin accounts come from the
// bootstrap endpoint only.
func assignableRole(role models.UserRole) bool {
	return role.Valid() && role != models.RoleAdmin
}

// POST /api/staff
func CreateStaffHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		var body CreateStaffRequest
		if err := web.BindAndValidate(c, &body); err != nil {
			return err
		}

		if !assignableRole(body.Role) {
			return apperr.Validation(map[string]string{"role": "not an assignable role"})
		}
		// Branch managers only hire into their own branch, and never
		// another manager.
		if !actor.Can().CanManageBranches {
			if body.Role == models.RoleBranchManager {
				return apperr.Permission("only admins may create branch managers")
			}
			body.BranchID = actor.BranchID
		}
		if body.BranchID == nil {
			return apperr.Validation(map[string]string{"branch_id": "is required"})
		}
		var branch models.Branch
		if err := database.DB.First(&branch, "id = ?", *body.BranchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("branch")
			}
			return err
		}

		email := strings.ToLower(strings.TrimSpace(body.Email))
		var existing models.User
		err = database.DB.Where("email = ?", email).First(&existing).Error
		if err == nil {
			return apperr.Conflict("email %s is already registered", email)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		user := models.User{
			FullName:     strings.TrimSpace(body.FullName),
			Email:        email,
			Phone:        strings.TrimSpace(body.Phone),
			PasswordHash: string(hash),
			Role:         body.Role,
			BranchID:     &branch.ID,
			IsActive:     true,
		}
		if err := database.DB.Create(&user).Error; err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": toStaffResponse(&user)})
	}
}

// GET /api/staff
func ListStaffHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		q := database.DB.Model(&models.User{}).Order("created_at DESC")
		if !actor.Can().CanManageBranches {
			q = q.Where("branch_id = ?", actor.BranchID)
		} else if bid := c.QueryInt("branch_id"); bid > 0 {
			q = q.Where("branch_id = ?", bid)
		}
		if role := c.Query("role"); role != "" {
			q = q.Where("role = ?", role)
		}

		var users []models.User
		if err := q.Find(&users).Error; err != nil {
			return err
		}
		res := make([]StaffResponse, 0, len(users))
		for i := range users {
			res = append(res, toStaffResponse(&users[i]))
		}
		return c.JSON(fiber.Map{"success": true, "data": res})
	}
}

type UpdateStaffRequest struct {
	FullName *string          `json:"full_name"`
	Phone    *string          `json:"phone"`
	Password *string          `json:"password" validate:"omitempty,min=8"`
	Role     *models.UserRole `json:"role"`
	IsActive *bool            `json:"is_active"`
}

// PATCH /api/staff/:id
func UpdateStaffHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid user id")
		}
		var body UpdateStaffRequest
		if err := web.BindAndValidate(c, &body); err != nil {
			return err
		}

		var user models.User
		if err := database.DB.First(&user, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("user")
			}
			return err
		}
		if user.Role == models.RoleAdmin {
			return apperr.Permission("admin accounts cannot be managed here")
		}
		if !actor.Can().CanManageBranches {
			if user.BranchID == nil || actor.BranchID == nil || *user.BranchID != *actor.BranchID {
				return apperr.NotFound("user")
			}
			if user.Role == models.RoleBranchManager {
				return apperr.Permission("only admins may manage branch managers")
			}
		}

		if body.FullName != nil {
			name := strings.TrimSpace(*body.FullName)
			if name == "" {
				return apperr.Validation(map[string]string{"full_name": "must not be blank"})
			}
			user.FullName = name
		}
		if body.Phone != nil {
			user.Phone = strings.TrimSpace(*body.Phone)
		}
		if body.Password != nil {
			hash, err := bcrypt.GenerateFromPassword([]byte(*body.Password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			user.PasswordHash = string(hash)
		}
		if body.Role != nil {
			if !assignableRole(*body.Role) {
				return apperr.Validation(map[string]string{"role": "not an assignable role"})
			}
			if !actor.Can().CanManageBranches && *body.Role == models.RoleBranchManager {
				return apperr.Permission("only admins may create branch managers")
			}
			user.Role = *body.Role
		}
		if body.IsActive != nil {
			user.IsActive = *body.IsActive
		}

		if err := database.DB.Save(&user).Error; err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": toStaffResponse(&user)})
	}
}

// DELETE /api/staff/:id
// Deactivates rather than deletes, so invoices keep their author.
func DeactivateStaffHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid user id")
		}
		if actor.ID == uint(id) {
			return apperr.Conflict("cannot deactivate your own account")
		}

		var user models.User
		if err := database.DB.First(&user, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("user")
			}
			return err
		}
		if user.Role == models.RoleAdmin {
			return apperr.Permission("admin accounts cannot be managed here")
		}
		if !actor.Can().CanManageBranches {
			if user.BranchID == nil || actor.BranchID == nil || *user.BranchID != *actor.BranchID {
				return apperr.NotFound("user")
			}
			if user.Role == models.RoleBranchManager {
				return apperr.Permission("only admins may manage branch managers")
			}
		}

		user.IsActive = false
		if err := database.DB.Save(&user).Error; err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "message": "user deactivated"})
	}
}
