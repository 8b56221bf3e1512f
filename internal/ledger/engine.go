// Package ledger maintains per-product on-hand quantity as the fold of the
// product's ordered StockActivity history. Only this package writes the
// cached Product.Quantity column.
package ledger

import (
	"errors"

	"gorm.io/gorm"

	"pos-backend/internal/apperr"
	"pos-backend/internal/database"
	"pos-backend/internal/models"
)

type Engine struct {
	// AllowNegativeStock permits REDUCE entries (sales included) to drive the
	// on-hand below zero. When false the offending post or correction fails
	// and the transaction rolls back.
	AllowNegativeStock bool
}

// apply folds one entry against a base quantity.
func apply(base int64, kind models.ActivityKind, change int64) int64 {
	switch kind {
	case models.ActivityAdd:
		return base + change
	case models.ActivityReduce:
		return base - change
	default: // EDIT re-anchors the fold at an absolute value
		return change
	}
}

// unapply reverses an entry's effect, recovering the quantity that existed
// immediately before it. EDIT has no meaningful inverse; callers that reverse
// an EDIT must already know the prior base.
func unapply(result int64, kind models.ActivityKind, change int64) int64 {
	switch kind {
	case models.ActivityAdd:
		return result - change
	case models.ActivityReduce:
		return result + change
	default:
		return result
	}
}

func validateChange(kind models.ActivityKind, change int64) error {
	switch kind {
	case models.ActivityAdd, models.ActivityReduce:
		if change <= 0 {
			return apperr.InvalidQuantity("change must be a positive quantity, got %d", change)
		}
	case models.ActivityEdit:
		if change < 0 {
			return apperr.InvalidQuantity("absolute quantity cannot be negative, got %d", change)
		}
	default:
		return apperr.InvalidQuantity("unknown activity kind %q", kind)
	}
	return nil
}

// Post appends a stock activity for the product and writes the folded
// quantity back onto the Product row, all within the caller's transaction.
// The product row is locked for the duration so concurrent posts fold
// against a consistent base.
func (e *Engine) Post(tx *gorm.DB, productID uint, kind models.ActivityKind, change int64, remarks string, invoiceID *uint) (*models.StockActivity, error) {
	if err := validateChange(kind, change); err != nil {
		return nil, err
	}

	var product models.Product
	if err := database.LockForUpdate(tx).First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("product")
		}
		return nil, err
	}

	resulting := apply(product.Quantity, kind, change)
	if resulting < 0 && !e.AllowNegativeStock {
		return nil, apperr.InvalidQuantity("insufficient stock for product %q: have %d, need %d", product.Name, product.Quantity, change)
	}

	activity := models.StockActivity{
		ProductID:         productID,
		Kind:              kind,
		Change:            change,
		ResultingQuantity: resulting,
		InvoiceID:         invoiceID,
		Remarks:           remarks,
	}
	if err := tx.Create(&activity).Error; err != nil {
		return nil, err
	}

	if err := tx.Model(&models.Product{}).Where("id = ?", productID).
		Update("quantity", resulting).Error; err != nil {
		return nil, err
	}

	return &activity, nil
}

// Correct rewrites a past activity's change and replays every later entry for
// the same product so the fold stays consistent. Runs as one all-or-nothing
// transaction; a failure partway leaves all ledger rows and the cached
// product quantity untouched. Re-applying the same correction is a no-op.
func (e *Engine) Correct(db *gorm.DB, activityID uint, newChange int64) (int64, error) {
	var finalQty int64

	err := db.Transaction(func(tx *gorm.DB) error {
		var activity models.StockActivity
		if err := tx.First(&activity, "id = ?", activityID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("stock activity")
			}
			return err
		}

		if err := validateChange(activity.Kind, newChange); err != nil {
			return err
		}

		// Holding the product row lock makes this the only writer folding
		// this product's history until commit.
		var product models.Product
		if err := database.LockForUpdate(tx).First(&product, "id = ?", activity.ProductID).Error; err != nil {
			return err
		}

		base := unapply(activity.ResultingQuantity, activity.Kind, activity.Change)
		activity.Change = newChange
		activity.ResultingQuantity = apply(base, activity.Kind, newChange)
		if activity.ResultingQuantity < 0 && !e.AllowNegativeStock {
			return apperr.InvalidQuantity("correction would drive stock to %d", activity.ResultingQuantity)
		}
		if err := tx.Save(&activity).Error; err != nil {
			return err
		}

		// Replay the suffix. Ties on created_at break by id, the creation
		// order, so the fold is deterministic.
		var later []models.StockActivity
		if err := tx.
			Where("product_id = ? AND (created_at > ? OR (created_at = ? AND id > ?))",
				activity.ProductID, activity.CreatedAt, activity.CreatedAt, activity.ID).
			Order("created_at ASC, id ASC").
			Find(&later).Error; err != nil {
			return err
		}

		prev := activity.ResultingQuantity
		for i := range later {
			later[i].ResultingQuantity = apply(prev, later[i].Kind, later[i].Change)
			if later[i].ResultingQuantity < 0 && !e.AllowNegativeStock {
				return apperr.InvalidQuantity("correction would drive stock to %d at activity %d", later[i].ResultingQuantity, later[i].ID)
			}
			if err := tx.Save(&later[i]).Error; err != nil {
				return err
			}
			prev = later[i].ResultingQuantity
		}

		finalQty = prev
		return tx.Model(&models.Product{}).Where("id = ?", activity.ProductID).
			Update("quantity", finalQty).Error
	})
	if err != nil {
		return 0, err
	}
	return finalQty, nil
}

// History returns a product's full ledger in fold order.
func History(db *gorm.DB, productID uint) ([]models.StockActivity, error) {
	var activities []models.StockActivity
	err := db.Where("product_id = ?", productID).
		Order("created_at ASC, id ASC").
		Find(&activities).Error
	return activities, err
}
