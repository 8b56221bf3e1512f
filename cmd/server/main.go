package main

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/sirupsen/logrus"

	"pos-backend/internal/admin"
	"pos-backend/internal/audit"
	"pos-backend/internal/auth"
	"pos-backend/internal/config"
	"pos-backend/internal/customer"
	"pos-backend/internal/dashboard"
	"pos-backend/internal/database"
	"pos-backend/internal/dining"
	"pos-backend/internal/inventory"
	"pos-backend/internal/invoice"
	"pos-backend/internal/ledger"
	"pos-backend/internal/models"
	"pos-backend/internal/notify"
	"pos-backend/internal/payment"
	"pos-backend/internal/web"
)

func main() {
	cfg := config.Load()
	database.Init(cfg)

	engine := &ledger.Engine{AllowNegativeStock: cfg.AllowNegativeStock}
	payments := &payment.Ledger{}
	hub := notify.NewHub()
	composer := &invoice.Composer{
		Ledger:   engine,
		Payments: payments,
		Notifier: hub,
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: web.ErrorHandler,
	})

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	}))

	api := app.Group("/api")

	// Login is the brute-force target; keep the limiter tight and scoped.
	api.Post("/auth/login", limiter.New(limiter.Config{
		Max:        10,
		Expiration: time.Minute,
	}), auth.LoginHandler(cfg))
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(cfg))

	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler())

	// Branch administration: admins only.
	branches := protected.Group("/branches")
	branches.Use(auth.RequireRole(models.RoleAdmin))
	branches.Post("/", admin.CreateBranchHandler())
	branches.Get("/", admin.ListBranchesHandler())
	branches.Get("/:id", admin.GetBranchHandler())
	branches.Patch("/:id", admin.UpdateBranchHandler())
	branches.Delete("/:id", admin.DeleteBranchHandler())

	// Staff accounts: admins chain-wide, branch managers for their branch.
	staff := protected.Group("/staff")
	staff.Use(auth.RequireRole(models.RoleAdmin, models.RoleBranchManager))
	staff.Post("/", admin.CreateStaffHandler())
	staff.Get("/", admin.ListStaffHandler())
	staff.Patch("/:id", admin.UpdateStaffHandler())
	staff.Delete("/:id", admin.DeactivateStaffHandler())

	// Catalog. Reads are open to all staff, writes need the catalog
	// capability.
	manageCatalog := auth.RequireCapability(func(caps models.Capabilities) bool { return caps.CanManageCatalog })
	protected.Get("/categories", inventory.ListCategoriesHandler())
	protected.Get("/products", inventory.ListProductsHandler())
	protected.Get("/products/:id", inventory.GetProductHandler())
	protected.Post("/categories", manageCatalog, inventory.CreateCategoryHandler())
	protected.Put("/categories/:id", manageCatalog, inventory.UpdateCategoryHandler())
	protected.Delete("/categories/:id", manageCatalog, inventory.DeleteCategoryHandler())
	protected.Post("/products", manageCatalog, inventory.CreateProductHandler(engine))
	protected.Patch("/products/:id", manageCatalog, inventory.UpdateProductHandler())
	protected.Delete("/products/:id", manageCatalog, inventory.DeleteProductHandler())

	// Stock ledger.
	protected.Get("/products/:id/stock-history", inventory.StockHistoryHandler())
	protected.Post("/products/:id/stock", manageCatalog, inventory.PostStockHandler(engine))
	protected.Patch("/stock-activities/:id", manageCatalog, inventory.CorrectStockHandler(engine))

	// Customers and the floor plan.
	protected.Post("/customers", customer.CreateHandler())
	protected.Get("/customers", customer.ListHandler())
	protected.Get("/customers/:id", customer.GetHandler())
	protected.Patch("/customers/:id", customer.UpdateHandler())
	protected.Delete("/customers/:id", customer.DeleteHandler())

	protected.Get("/floors", dining.ListFloorsHandler())
	protected.Post("/floors", manageCatalog, dining.CreateFloorHandler())
	protected.Patch("/floors/:id", manageCatalog, dining.UpdateFloorHandler())
	protected.Delete("/floors/:id", manageCatalog, dining.DeleteFloorHandler())
	protected.Patch("/tables/:id/status", dining.ChangeTableStatusHandler())

	// Invoices.
	protected.Post("/invoices", invoice.CreateHandler(composer))
	protected.Get("/invoices", invoice.ListHandler())
	protected.Get("/invoices/:id", invoice.GetHandler())
	protected.Patch("/invoices/:id", invoice.PatchHandler())
	protected.Put("/invoices/:id/items", invoice.ReplaceItemsHandler(composer))
	protected.Post("/invoices/:id/cancel", invoice.CancelHandler(composer))
	protected.Delete("/invoices/:id", invoice.DeleteHandler())

	// Payments.
	protected.Post("/invoices/:id/payments", payment.AddHandler(payments))
	protected.Get("/invoices/:id/payments", payment.ListByInvoiceHandler())
	protected.Get("/payments/:id", payment.GetHandler())
	protected.Patch("/payments/:id", payment.PatchHandler(payments))
	protected.Delete("/payments/:id", payment.DeleteHandler(payments))

	// Live invoice feed.
	protected.Get("/events/invoices", notify.StreamHandler(hub))

	// Reporting.
	reports := protected.Group("/dashboard")
	reports.Use(auth.RequireRole(models.RoleAdmin, models.RoleBranchManager, models.RoleCounter))
	reports.Get("/summary", dashboard.SummaryHandler())
	reports.Get("/top-products", dashboard.TopProductsHandler())
	reports.Get("/low-stock", dashboard.LowStockHandler())
	reports.Get("/export", dashboard.ExportHandler())

	// Audit trail.
	protected.Get("/audit-logs", auth.RequireRole(models.RoleAdmin, models.RoleBranchManager), audit.ListHandler())

	logrus.WithField("port", cfg.HTTPPort).Info("server listening")
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		logrus.Fatal(err)
	}
}
