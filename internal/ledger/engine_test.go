package ledger_test

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"pos-backend/internal/apperr"
	"pos-backend/internal/ledger"
	"pos-backend/internal/models"
	"pos-backend/internal/testutil"
)

func post(t *testing.T, db *gorm.DB, eng *ledger.Engine, productID uint, kind models.ActivityKind, change int64) *models.StockActivity {
	t.Helper()
	var activity *models.StockActivity
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		activity, err = eng.Post(tx, productID, kind, change, "", nil)
		return err
	})
	if err != nil {
		t.Fatalf("post %s %d: %v", kind, change, err)
	}
	return activity
}

func productQty(t *testing.T, db *gorm.DB, id uint) int64 {
	t.Helper()
	var p models.Product
	if err := db.First(&p, "id = ?", id).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	return p.Quantity
}

// The cached product quantity must always equal the fold of the full history.
func TestPostFoldsHistory(t *testing.T) {
	db := testutil.OpenDB(t)
	_, cat := testutil.SeedBranch(t, db, "B1")
	product := testutil.SeedProduct(t, db, cat.ID, "Espresso", 0, "3.50")
	eng := &ledger.Engine{AllowNegativeStock: true}

	post(t, db, eng, product.ID, models.ActivityAdd, 20)
	post(t, db, eng, product.ID, models.ActivityReduce, 5)
	post(t, db, eng, product.ID, models.ActivityAdd, 3)

	if got := productQty(t, db, product.ID); got != 18 {
		t.Fatalf("quantity = %d, want 18", got)
	}

	history, err := ledger.History(db, product.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	wantResults := []int64{20, 15, 18}
	if len(history) != len(wantResults) {
		t.Fatalf("history length = %d, want %d", len(history), len(wantResults))
	}
	for i, want := range wantResults {
		if history[i].ResultingQuantity != want {
			t.Errorf("entry %d resulting = %d, want %d", i, history[i].ResultingQuantity, want)
		}
	}
}

func TestPostEditOverwritesQuantity(t *testing.T) {
	db := testutil.OpenDB(t)
	_, cat := testutil.SeedBranch(t, db, "B1")
	product := testutil.SeedProduct(t, db, cat.ID, "Beans", 0, "12.00")
	eng := &ledger.Engine{}

	post(t, db, eng, product.ID, models.ActivityAdd, 7)
	post(t, db, eng, product.ID, models.ActivityEdit, 50)

	if got := productQty(t, db, product.ID); got != 50 {
		t.Fatalf("quantity = %d, want 50 after EDIT", got)
	}
}

func TestPostRejectsInvalidChange(t *testing.T) {
	db := testutil.OpenDB(t)
	_, cat := testutil.SeedBranch(t, db, "B1")
	product := testutil.SeedProduct(t, db, cat.ID, "Milk", 10, "1.50")
	eng := &ledger.Engine{AllowNegativeStock: true}

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := eng.Post(tx, product.ID, models.ActivityAdd, 0, "", nil)
		return err
	})
	if apperr.KindOf(err) != apperr.KindInvalidQuantity {
		t.Fatalf("err = %v, want InvalidQuantity", err)
	}
	if got := productQty(t, db, product.ID); got != 10 {
		t.Fatalf("quantity changed to %d after rejected post", got)
	}
}

func TestPostNegativeStockPolicy(t *testing.T) {
	db := testutil.OpenDB(t)
	_, cat := testutil.SeedBranch(t, db, "B1")
	product := testutil.SeedProduct(t, db, cat.ID, "Flour", 3, "2.00")

	strict := &ledger.Engine{AllowNegativeStock: false}
	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := strict.Post(tx, product.ID, models.ActivityReduce, 5, "", nil)
		return err
	})
	if apperr.KindOf(err) != apperr.KindInvalidQuantity {
		t.Fatalf("strict engine: err = %v, want InvalidQuantity", err)
	}
	if got := productQty(t, db, product.ID); got != 3 {
		t.Fatalf("quantity = %d, want 3 untouched", got)
	}

	permissive := &ledger.Engine{AllowNegativeStock: true}
	post(t, db, permissive, product.ID, models.ActivityReduce, 5)
	if got := productQty(t, db, product.ID); got != -2 {
		t.Fatalf("quantity = %d, want -2 under permissive policy", got)
	}
}

// Spec scenario: on-hand 20, a sale reduces 5, then an earlier ADD of 10 is
// corrected to 15; the +5 must propagate through all later entries.
func TestCorrectCascadesThroughLaterEntries(t *testing.T) {
	db := testutil.OpenDB(t)
	_, cat := testutil.SeedBranch(t, db, "B1")
	product := testutil.SeedProduct(t, db, cat.ID, "Butter", 0, "4.25")
	eng := &ledger.Engine{AllowNegativeStock: true}

	post(t, db, eng, product.ID, models.ActivityAdd, 10)
	added := post(t, db, eng, product.ID, models.ActivityAdd, 10) // to be corrected
	post(t, db, eng, product.ID, models.ActivityReduce, 5)

	qty, err := eng.Correct(db, added.ID, 15)
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if qty != 20 {
		t.Fatalf("final quantity = %d, want 20", qty)
	}
	if got := productQty(t, db, product.ID); got != 20 {
		t.Fatalf("cached quantity = %d, want 20", got)
	}

	history, err := ledger.History(db, product.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	wantResults := []int64{10, 25, 20}
	for i, want := range wantResults {
		if history[i].ResultingQuantity != want {
			t.Errorf("entry %d resulting = %d, want %d", i, history[i].ResultingQuantity, want)
		}
	}
}

func TestCorrectWithoutLaterEntries(t *testing.T) {
	db := testutil.OpenDB(t)
	_, cat := testutil.SeedBranch(t, db, "B1")
	product := testutil.SeedProduct(t, db, cat.ID, "Sugar", 0, "1.00")
	eng := &ledger.Engine{}

	added := post(t, db, eng, product.ID, models.ActivityAdd, 10)

	qty, err := eng.Correct(db, added.ID, 4)
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if qty != 4 {
		t.Fatalf("final quantity = %d, want the edited entry's value 4", qty)
	}
}

func TestCorrectIsIdempotent(t *testing.T) {
	db := testutil.OpenDB(t)
	_, cat := testutil.SeedBranch(t, db, "B1")
	product := testutil.SeedProduct(t, db, cat.ID, "Yeast", 0, "0.80")
	eng := &ledger.Engine{AllowNegativeStock: true}

	first := post(t, db, eng, product.ID, models.ActivityAdd, 10)
	post(t, db, eng, product.ID, models.ActivityReduce, 2)

	once, err := eng.Correct(db, first.ID, 13)
	if err != nil {
		t.Fatalf("first correct: %v", err)
	}
	twice, err := eng.Correct(db, first.ID, 13)
	if err != nil {
		t.Fatalf("second correct: %v", err)
	}
	if once != twice {
		t.Fatalf("correction not idempotent: %d then %d", once, twice)
	}
	if got := productQty(t, db, product.ID); got != 11 {
		t.Fatalf("quantity = %d, want 11", got)
	}
}

// Entries created within the same timestamp must fold in id order.
func TestCorrectTieBreaksOnID(t *testing.T) {
	db := testutil.OpenDB(t)
	_, cat := testutil.SeedBranch(t, db, "B1")
	product := testutil.SeedProduct(t, db, cat.ID, "Salt", 0, "0.50")
	eng := &ledger.Engine{AllowNegativeStock: true}

	now := time.Now().Truncate(time.Second)
	entries := []models.StockActivity{
		{ProductID: product.ID, Kind: models.ActivityAdd, Change: 10, ResultingQuantity: 10, CreatedAt: now},
		{ProductID: product.ID, Kind: models.ActivityReduce, Change: 4, ResultingQuantity: 6, CreatedAt: now},
		{ProductID: product.ID, Kind: models.ActivityAdd, Change: 1, ResultingQuantity: 7, CreatedAt: now},
	}
	for i := range entries {
		if err := db.Create(&entries[i]).Error; err != nil {
			t.Fatalf("seed entry: %v", err)
		}
	}
	if err := db.Model(&models.Product{}).Where("id = ?", product.ID).Update("quantity", 7).Error; err != nil {
		t.Fatalf("seed quantity: %v", err)
	}

	qty, err := eng.Correct(db, entries[0].ID, 20)
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if qty != 17 {
		t.Fatalf("final quantity = %d, want 17 (20-4+1)", qty)
	}

	history, err := ledger.History(db, product.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	wantResults := []int64{20, 16, 17}
	for i, want := range wantResults {
		if history[i].ResultingQuantity != want {
			t.Errorf("entry %d resulting = %d, want %d", i, history[i].ResultingQuantity, want)
		}
	}
}

func TestCorrectUnknownActivity(t *testing.T) {
	db := testutil.OpenDB(t)
	eng := &ledger.Engine{}

	_, err := eng.Correct(db, 9999, 5)
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

// A correction that would fold a later entry negative must leave every row
// untouched under the strict policy.
func TestCorrectRollsBackOnPolicyViolation(t *testing.T) {
	db := testutil.OpenDB(t)
	_, cat := testutil.SeedBranch(t, db, "B1")
	product := testutil.SeedProduct(t, db, cat.ID, "Eggs", 0, "0.30")
	eng := &ledger.Engine{AllowNegativeStock: false}

	first := post(t, db, eng, product.ID, models.ActivityAdd, 10)
	post(t, db, eng, product.ID, models.ActivityReduce, 8)

	_, err := eng.Correct(db, first.ID, 5)
	if apperr.KindOf(err) != apperr.KindInvalidQuantity {
		t.Fatalf("err = %v, want InvalidQuantity", err)
	}

	history, err := ledger.History(db, product.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if history[0].Change != 10 || history[0].ResultingQuantity != 10 {
		t.Fatalf("first entry mutated after failed correction: %+v", history[0])
	}
	if got := productQty(t, db, product.ID); got != 2 {
		t.Fatalf("quantity = %d, want 2 untouched", got)
	}
}
