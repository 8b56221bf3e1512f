package dining

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

type TableResponse struct {
	ID     uint   `json:"id"`
	Number int    `json:"number"`
	Seats  int    `json:"seats"`
	Status string `json:"status"`
}

type FloorResponse struct {
	ID       uint            `json:"id"`
	BranchID uint            `json:"branch_id"`
	Name     string          `json:"name"`
	Tables   []TableResponse `json:"tables"`
}

func toFloorResponse(f *models.Floor) FloorResponse {
	res := FloorResponse{
		ID:       f.ID,
		BranchID: f.BranchID,
		Name:     f.Name,
	}
	for _, t := range f.Tables {
		res.Tables = append(res.Tables, TableResponse{
			ID:     t.ID,
			Number: t.Number,
			Seats:  t.Seats,
			Status: string(t.Status),
		})
	}
	return res
}

type CreateFloorRequest struct {
	BranchID   *uint  `json:"branch_id"`
	Name       string `json:"name" validate:"required,min=1,max=100"`
	TableCount int    `json:"table_count" validate:"min=0,max=200"`
	Seats      int    `json:"seats" validate:"min=0,max=50"`
}

// POST /api/floors
// Creating a floor lays out its tables in one go, numbered from 1.
func CreateFloorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, err := auth.CurrentUser(c); err != nil {
			return err
		}
		var body CreateFloorRequest
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
		var existing models.Floor
		err = database.DB.Where("branch_id = ? AND LOWER(name) = LOWER(?)", branchID, name).First(&existing).Error
		if err == nil {
			return apperr.Conflict("floor %q already exists in this branch", name)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		seats := body.Seats
		if seats == 0 {
			seats = 4
		}
		floor := models.Floor{BranchID: branchID, Name: name, TableCount: body.TableCount}
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&floor).Error; err != nil {
				return err
			}
			for n := 1; n <= body.TableCount; n++ {
				table := models.DiningTable{
					FloorID: floor.ID,
					Number:  n,
					Seats:   seats,
					Status:  models.TableAvailable,
				}
				if err := tx.Create(&table).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		var created models.Floor
		if err := database.DB.Preload("Tables").First(&created, "id = ?", floor.ID).Error; err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": toFloorResponse(&created)})
	}
}

// GET /api/floors
func ListFloorsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		q := database.DB.Preload("Tables", func(db *gorm.DB) *gorm.DB {
			return db.Order("number ASC")
		}).Order("name ASC")
		if !user.Can().CanManageBranches {
			q = q.Where("branch_id = ?", user.BranchID)
		} else if bid := c.QueryInt("branch_id"); bid > 0 {
			q = q.Where("branch_id = ?", bid)
		}

		var floors []models.Floor
		if err := q.Find(&floors).Error; err != nil {
			return err
		}
		res := make([]FloorResponse, 0, len(floors))
		for i := range floors {
			res = append(res, toFloorResponse(&floors[i]))
		}
		return c.JSON(fiber.Map{"success": true, "data": res})
	}
}

func floorForUser(user *models.User, id uint) (*models.Floor, error) {
	var floor models.Floor
	if err := database.DB.Preload("Tables").First(&floor, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("floor")
		}
		return nil, err
	}
	if !user.Can().CanManageBranches && (user.BranchID == nil || floor.BranchID != *user.BranchID) {
		return nil, apperr.NotFound("floor")
	}
	return &floor, nil
}

type UpdateFloorRequest struct {
	Name *string `json:"name"`
}

// PATCH /api/floors/:id
func UpdateFloorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid floor id")
		}
		var body UpdateFloorRequest
		if err := web.BindAndValidate(c, &body); err != nil {
			return err
		}

		floor, err := floorForUser(user, uint(id))
		if err != nil {
			return err
		}
		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return apperr.Validation(map[string]string{"name": "must not be blank"})
			}
			var clash models.Floor
			err := database.DB.
				Where("branch_id = ? AND LOWER(name) = LOWER(?) AND id <> ?", floor.BranchID, name, floor.ID).
				First(&clash).Error
			if err == nil {
				return apperr.Conflict("floor %q already exists in this branch", name)
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			floor.Name = name
		}

		if err := database.DB.Save(floor).Error; err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": toFloorResponse(floor)})
	}
}

// DELETE /api/floors/:id
func DeleteFloorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid floor id")
		}
		floor, err := floorForUser(user, uint(id))
		if err != nil {
			return err
		}

		var open int64
		if err := database.DB.Model(&models.Invoice{}).
			Where("floor_id = ? AND payment_status IN ?", floor.ID,
				[]models.PaymentStatus{models.PaymentPending, models.PaymentPartial}).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return apperr.Conflict("floor still has %d open invoices", open)
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Invoice{}).
				Where("floor_id = ?", floor.ID).
				Update("floor_id", nil).Error; err != nil {
				return err
			}
			if err := tx.Where("floor_id = ?", floor.ID).Delete(&models.DiningTable{}).Error; err != nil {
				return err
			}
			return tx.Delete(floor).Error
		})
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "message": "floor deleted"})
	}
}

type ChangeTableStatusRequest struct {
	Status models.TableStatus `json:"status" validate:"required,oneof=AVAILABLE OCCUPIED RESERVED"`
}

// PATCH /api/tables/:id/status
func ChangeTableStatusHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid table id")
		}
		var body ChangeTableStatusRequest
		if err := web.BindAndValidate(c, &body); err != nil {
			return err
		}

		var table models.DiningTable
		if err := database.DB.Preload("Floor").First(&table, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("table")
			}
			return err
		}
		if !user.Can().CanManageBranches && (user.BranchID == nil || table.Floor.BranchID != *user.BranchID) {
			return apperr.NotFound("table")
		}

		table.Status = body.Status
		if err := database.DB.Save(&table).Error; err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": TableResponse{
			ID:     table.ID,
			Number: table.Number,
			Seats:  table.Seats,
			Status: string(table.Status),
		}})
	}
}
