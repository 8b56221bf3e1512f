package database_test

import (
	"testing"

	"pos-backend/internal/models"
	"pos-backend/internal/testutil"
)

// Migration must build the full relation graph; a category's product
// back-reference hangs off Product.CategoryID, not the gorm default name.
func TestMigrateResolvesCategoryProducts(t *testing.T) {
	db := testutil.OpenDB(t)

	_, category := testutil.SeedBranch(t, db, "Central")
	testutil.SeedProduct(t, db, category.ID, "Espresso", 10, "3.50")
	testutil.SeedProduct(t, db, category.ID, "Latte", 5, "4.50")

	var loaded models.ProductCategory
	if err := db.Preload("Products").First(&loaded, "id = ?", category.ID).Error; err != nil {
		t.Fatalf("preload products: %v", err)
	}
	if len(loaded.Products) != 2 {
		t.Fatalf("expected 2 products on the category, got %d", len(loaded.Products))
	}
	for _, p := range loaded.Products {
		if p.CategoryID != category.ID {
			t.Errorf("product %q linked to category %d, want %d", p.Name, p.CategoryID, category.ID)
		}
	}
}
