package audit

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"pos-backend/internal/auth"
	"pos-backend/internal/database"
	"pos-backend/internal/models"
)

type LogResponse struct {
	ID          uint               `json:"id"`
	CreatedAt   string             `json:"created_at"`
	BranchID    *uint              `json:"branch_id"`
	UserID      uint               `json:"user_id"`
	UserName    string             `json:"user_name"`
	EntityType  string             `json:"entity_type"`
	EntityID    uint               `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
	BeforeData  string             `json:"before_data"`
	AfterData   string             `json:"after_data"`
}

// GET /api/audit-logs?entity_type=invoice&entity_id=1&branch_id=1&user_id=2
func ListHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		q := database.DB.Model(&models.AuditLog{})

		// Admins filter freely; everyone else is pinned to their branch.
		if user.Can().CanManageBranches {
			if bidStr := c.Query("branch_id"); bidStr != "" {
				var bid uint
				if _, err := fmt.Sscan(bidStr, &bid); err == nil && bid > 0 {
					q = q.Where("branch_id = ?", bid)
				}
			}
		} else {
			q = q.Where("branch_id = ?", user.BranchID)
		}

		if entityType := c.Query("entity_type"); entityType != "" {
			q = q.Where("entity_type = ?", entityType)
		}
		if eidStr := c.Query("entity_id"); eidStr != "" {
			var eid uint
			if _, err := fmt.Sscan(eidStr, &eid); err == nil && eid > 0 {
				q = q.Where("entity_id = ?", eid)
			}
		}
		if uidStr := c.Query("user_id"); uidStr != "" {
			var uid uint
			if _, err := fmt.Sscan(uidStr, &uid); err == nil && uid > 0 {
				q = q.Where("user_id = ?", uid)
			}
		}

		var logs []models.AuditLog
		if err := q.Order("created_at DESC").Limit(500).Find(&logs).Error; err != nil {
			return err
		}

		resp := make([]LogResponse, 0, len(logs))
		for _, entry := range logs {
			resp = append(resp, LogResponse{
				ID:          entry.ID,
				CreatedAt:   entry.CreatedAt.Format("2006-01-02 15:04:05"),
				BranchID:    entry.BranchID,
				UserID:      entry.UserID,
				UserName:    entry.UserName,
				EntityType:  entry.EntityType,
				EntityID:    entry.EntityID,
				Action:      entry.Action,
				Description: entry.Description,
				BeforeData:  entry.BeforeData,
				AfterData:   entry.AfterData,
			})
		}
		return c.JSON(fiber.Map{"success": true, "data": resp})
	}
}
