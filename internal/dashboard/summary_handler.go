package dashboard

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"pos-backend/internal/auth"
	"pos-backend/internal/database"
	"pos-backend/internal/models"
)

type SummaryResponse struct {
	BranchID       uint            `json:"branch_id"`
	From           string          `json:"from"`
	To             string          `json:"to"`
	InvoiceCount   int64           `json:"invoice_count"`
	Revenue        decimal.Decimal `json:"revenue"`
	Collected      decimal.Decimal `json:"collected"`
	Outstanding    decimal.Decimal `json:"outstanding"`
	CancelledCount int64           `json:"cancelled_count"`
	ByMethod       []MethodSlice   `json:"by_method"`
	ByStatus       []StatusSlice   `json:"by_status"`
}

type MethodSlice struct {
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
	Count  int64           `json:"count"`
}

type StatusSlice struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// resolveBranch pins non-admin callers to their own branch; admins pass
// ?branch_id= explicitly.
func resolveBranch(c *fiber.Ctx) (uint, error) {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return 0, err
	}
	if user.Can().CanManageBranches {
		bid := c.QueryInt("branch_id")
		if bid <= 0 {
			return 0, fiber.NewError(fiber.StatusBadRequest, "branch_id is required")
		}
		return uint(bid), nil
	}
	if user.BranchID == nil {
		return 0, fiber.NewError(fiber.StatusForbidden, "account has no branch")
	}
	return *user.BranchID, nil
}

// parseRange reads ?from= and ?to= (YYYY-MM-DD, inclusive); default is today.
func parseRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	const layout = "2006-01-02"
	now := time.Now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 0, 1)

	if s := c.Query("from"); s != "" {
		t, err := time.ParseInLocation(layout, s, now.Location())
		if err != nil {
			return from, to, fiber.NewError(fiber.StatusBadRequest, "invalid from date")
		}
		from = t
		to = from.AddDate(0, 0, 1)
	}
	if s := c.Query("to"); s != "" {
		t, err := time.ParseInLocation(layout, s, now.Location())
		if err != nil {
			return from, to, fiber.NewError(fiber.StatusBadRequest, "invalid to date")
		}
		to = t.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		return from, to, fiber.NewError(fiber.StatusBadRequest, "to must not be before from")
	}
	return from, to, nil
}

func buildSummary(branchID uint, from, to time.Time) (*SummaryResponse, error) {
	res := &SummaryResponse{
		BranchID:    branchID,
		From:        from.Format("2006-01-02"),
		To:          to.AddDate(0, 0, -1).Format("2006-01-02"),
		Revenue:     decimal.Zero,
		Collected:   decimal.Zero,
		Outstanding: decimal.Zero,
	}

	var invoices []models.Invoice
	if err := database.DB.
		Where("branch_id = ? AND created_at >= ? AND created_at < ?", branchID, from, to).
		Find(&invoices).Error; err != nil {
		return nil, err
	}

	statusCounts := map[models.PaymentStatus]int64{}
	for i := range invoices {
		inv := &invoices[i]
		statusCounts[inv.PaymentStatus]++
		if inv.PaymentStatus == models.PaymentCancelled {
			res.CancelledCount++
			continue
		}
		res.InvoiceCount++
		res.Revenue = res.Revenue.Add(inv.TotalAmount)
		res.Collected = res.Collected.Add(inv.PaidAmount)
		res.Outstanding = res.Outstanding.Add(inv.DueAmount())
	}
	for status, count := range statusCounts {
		res.ByStatus = append(res.ByStatus, StatusSlice{Status: string(status), Count: count})
	}

	type methodRow struct {
		PaymentMethod string
		Total         decimal.Decimal
		Count         int64
	}
	var rows []methodRow
	err := database.DB.Model(&models.Payment{}).
		Select("payments.payment_method, SUM(payments.amount) AS total, COUNT(*) AS count").
		Joins("JOIN invoices ON invoices.id = payments.invoice_id").
		Where("invoices.branch_id = ? AND payments.created_at >= ? AND payments.created_at < ?", branchID, from, to).
		Where("invoices.payment_status <> ?", models.PaymentCancelled).
		Group("payments.payment_method").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		res.ByMethod = append(res.ByMethod, MethodSlice{Method: r.PaymentMethod, Amount: r.Total, Count: r.Count})
	}
	return res, nil
}

// GET /api/dashboard/summary?from=&to=&branch_id=
func SummaryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		branchID, err := resolveBranch(c)
		if err != nil {
			return err
		}
		from, to, err := parseRange(c)
		if err != nil {
			return err
		}
		summary, err := buildSummary(branchID, from, to)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": summary})
	}
}

type TopProduct struct {
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// GET /api/dashboard/top-products?from=&to=&limit=
func TopProductsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		branchID, err := resolveBranch(c)
		if err != nil {
			return err
		}
		from, to, err := parseRange(c)
		if err != nil {
			return err
		}
		limit := c.QueryInt("limit", 10)
		if limit <= 0 || limit > 100 {
			limit = 10
		}

		var rows []TopProduct
		err = database.DB.Model(&models.InvoiceItem{}).
			Select("invoice_items.product_name, SUM(invoice_items.quantity) AS quantity, "+
				"SUM(invoice_items.quantity * invoice_items.unit_price - invoice_items.discount_amount) AS revenue").
			Joins("JOIN invoices ON invoices.id = invoice_items.invoice_id").
			Where("invoices.branch_id = ? AND invoices.created_at >= ? AND invoices.created_at < ?", branchID, from, to).
			Where("invoices.payment_status <> ?", models.PaymentCancelled).
			Group("invoice_items.product_name").
			Order("quantity DESC").
			Limit(limit).
			Scan(&rows).Error
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": rows})
	}
}

type LowStockRow struct {
	ProductID   uint   `json:"product_id"`
	Name        string `json:"name"`
	Quantity    int64  `json:"quantity"`
	LowStockBar int64  `json:"low_stock_bar"`
}

// GET /api/dashboard/low-stock?branch_id=
func LowStockHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		branchID, err := resolveBranch(c)
		if err != nil {
			return err
		}

		var rows []LowStockRow
		err = database.DB.Model(&models.Product{}).
			Select("products.id AS product_id, products.name, products.quantity, products.low_stock_bar").
			Joins("JOIN product_categories ON product_categories.id = products.category_id").
			Where("product_categories.branch_id = ? AND products.quantity <= products.low_stock_bar", branchID).
			Order("products.quantity ASC").
			Scan(&rows).Error
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": rows})
	}
}
