package dashboard

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"

	"pos-backend/internal/database"
	"pos-backend/internal/models"
)

// GET /api/dashboard/export?from=&to=&branch_id=
// Streams an XLSX workbook: one sheet of invoices for the range, one summary
// sheet with the period totals.
func ExportHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		branchID, err := resolveBranch(c)
		if err != nil {
			return err
		}
		from, to, err := parseRange(c)
		if err != nil {
			return err
		}

		var invoices []models.Invoice
		if err := database.DB.
			Preload("Customer").
			Preload("CreatedBy").
			Where("branch_id = ? AND created_at >= ? AND created_at < ?", branchID, from, to).
			Order("created_at ASC").
			Find(&invoices).Error; err != nil {
			return err
		}
		summary, err := buildSummary(branchID, from, to)
		if err != nil {
			return err
		}

		f := excelize.NewFile()
		defer f.Close()

		const invoiceSheet = "Invoices"
		f.SetSheetName("Sheet1", invoiceSheet)

		headers := []string{"Invoice No", "Date", "Customer", "Created By",
			"Subtotal", "Tax", "Discount", "Total", "Paid", "Due", "Payment Status", "Status"}
		for i, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			f.SetCellValue(invoiceSheet, cell, h)
		}

		for row, inv := range invoices {
			customer := ""
			if inv.Customer != nil {
				customer = inv.Customer.Name
			}
			creator := ""
			if inv.CreatedBy != nil {
				creator = inv.CreatedBy.FullName
			}
			values := []any{
				inv.InvoiceNumber,
				inv.CreatedAt.Format("2006-01-02 15:04:05"),
				customer,
				creator,
				inv.Subtotal.InexactFloat64(),
				inv.TaxAmount.InexactFloat64(),
				inv.Discount.InexactFloat64(),
				inv.TotalAmount.InexactFloat64(),
				inv.PaidAmount.InexactFloat64(),
				inv.DueAmount().InexactFloat64(),
				string(inv.PaymentStatus),
				string(inv.InvoiceStatus),
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
				f.SetCellValue(invoiceSheet, cell, v)
			}
		}

		const summarySheet = "Summary"
		if _, err := f.NewSheet(summarySheet); err != nil {
			return err
		}
		summaryRows := [][2]any{
			{"Branch", branchID},
			{"From", summary.From},
			{"To", summary.To},
			{"Invoices", summary.InvoiceCount},
			{"Cancelled", summary.CancelledCount},
			{"Revenue", summary.Revenue.InexactFloat64()},
			{"Collected", summary.Collected.InexactFloat64()},
			{"Outstanding", summary.Outstanding.InexactFloat64()},
		}
		for i, pair := range summaryRows {
			f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), pair[0])
			f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), pair[1])
		}
		for i, slice := range summary.ByMethod {
			rowIdx := len(summaryRows) + 2 + i
			f.SetCellValue(summarySheet, fmt.Sprintf("A%d", rowIdx), slice.Method)
			f.SetCellValue(summarySheet, fmt.Sprintf("B%d", rowIdx), slice.Amount.InexactFloat64())
		}

		filename := fmt.Sprintf("sales_%s_%s.xlsx", summary.From, summary.To)
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
		return f.Write(c.Response().BodyWriter())
	}
}
