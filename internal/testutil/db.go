// Package testutil provides the in-memory database fixture shared by the
// package test suites.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pos-backend/internal/database"
	"pos-backend/internal/models"
)

// OpenDB returns a migrated in-memory database. A single connection is
// enforced so every session sees the same :memory: instance.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SeedBranch creates a branch with one category.
func SeedBranch(t *testing.T, db *gorm.DB, name string) (*models.Branch, *models.ProductCategory) {
	t.Helper()

	branch := models.Branch{Name: name, Location: "Downtown"}
	if err := db.Create(&branch).Error; err != nil {
		t.Fatalf("seed branch: %v", err)
	}
	category := models.ProductCategory{BranchID: branch.ID, Name: "General"}
	if err := db.Create(&category).Error; err != nil {
		t.Fatalf("seed category: %v", err)
	}
	return &branch, &category
}

// SeedProduct creates a product with the given on-hand quantity and selling
// price (cost price is set below it so the price invariant holds).
func SeedProduct(t *testing.T, db *gorm.DB, categoryID uint, name string, qty int64, price string) *models.Product {
	t.Helper()

	sell, err := decimal.NewFromString(price)
	if err != nil {
		t.Fatalf("bad price %q: %v", price, err)
	}
	product := models.Product{
		CategoryID: categoryID,
		Name:       name,
		CostPrice:  sell.Div(decimal.NewFromInt(2)).Round(2),
		SellPrice:  sell,
		Quantity:   qty,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return &product
}

var userSeq atomic.Int64

// SeedUser creates an active staff account in the branch.
func SeedUser(t *testing.T, db *gorm.DB, branchID uint, role models.UserRole) *models.User {
	t.Helper()

	user := models.User{
		BranchID:     &branchID,
		FullName:     string(role) + " user",
		Email:        fmt.Sprintf("%s-%d@test.local", role, userSeq.Add(1)),
		PasswordHash: "x",
		Role:         role,
		IsActive:     true,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return &user
}
