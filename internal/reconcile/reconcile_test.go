package reconcile

import (
	"testing"

	"github.com/hearthside/pantrysync/internal/model"
)

func testDocument() model.Document {
	doc := model.DefaultDocument()
	doc.GlobalItems = []model.CatalogItem{
		{ID: "milk", Name: "Milk", CategoryID: "dairy", EstimatedPrice: 1.2, PriceUnit: "liter"},
		{ID: "bread", Name: "Bread", CategoryID: "bakery", EstimatedPrice: 2.5, PriceUnit: "loaf"},
	}
	return doc
}

func TestResolveExplicitID(t *testing.T) {
	doc := testDocument()

	got, id := Resolve(doc, ItemRef{GlobalItemID: "milk"})
	if id != "milk" {
		t.Fatalf("id = %q, want %q", id, "milk")
	}
	if len(got.GlobalItems) != 2 {
		t.Errorf("catalog grew to %d entries, want 2", len(got.GlobalItems))
	}
}

func TestResolveByNameCaseInsensitive(t *testing.T) {
	doc := testDocument()

	_, id := Resolve(doc, ItemRef{Name: "  mIlK ", CategoryID: "dairy"})
	if id != "milk" {
		t.Fatalf("id = %q, want %q", id, "milk")
	}
}

func TestResolveSameNameDifferentCategory(t *testing.T) {
	doc := testDocument()

	got, id := Resolve(doc, ItemRef{Name: "Milk", CategoryID: "beverages"})
	if id == "milk" {
		t.Fatal("expected a new catalog entry, got the dairy one")
	}
	if len(got.GlobalItems) != 3 {
		t.Fatalf("catalog has %d entries, want 3", len(got.GlobalItems))
	}
}

func TestResolveCreatesCatalogItem(t *testing.T) {
	doc := testDocument()

	got, id := Resolve(doc, ItemRef{Name: "Oat Flakes", CategoryID: "pantry", EstimatedPrice: 3.1, PriceUnit: "kg"})
	created := got.FindCatalogItem(id)
	if created == nil {
		t.Fatal("created catalog item not found")
	}
	if created.Name != "Oat Flakes" || created.CategoryID != "pantry" {
		t.Errorf("created = %+v", created)
	}
	if created.EstimatedPrice != 3.1 || created.PriceUnit != "kg" {
		t.Errorf("price seed = %v %q, want 3.1 kg", created.EstimatedPrice, created.PriceUnit)
	}
}

func TestResolveAutoCategorizes(t *testing.T) {
	doc := testDocument()

	got, id := Resolve(doc, ItemRef{Name: "Bananas"})
	created := got.FindCatalogItem(id)
	if created == nil {
		t.Fatal("created catalog item not found")
	}
	if created.CategoryID != "produce" {
		t.Errorf("category = %q, want %q", created.CategoryID, "produce")
	}
}

func TestUpsertAppendsNewEntry(t *testing.T) {
	list := model.List{ID: "l1", Name: "Groceries"}

	list, item := Upsert(list, model.ListItem{GlobalItemID: "milk", Quantity: 1, QuantityUnit: "liter", PriceBasisQuantity: 1}, "")
	if len(list.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(list.Items))
	}
	if item.ID == "" {
		t.Error("expected a generated item id")
	}
}

func TestUpsertMergesDuplicates(t *testing.T) {
	price := 1.99
	list := model.List{ID: "l1", Items: []model.ListItem{
		{ID: "a", GlobalItemID: "milk", Quantity: 1, QuantityUnit: "liter", PriceBasisQuantity: 1, Notes: "whole"},
	}}

	list, merged := Upsert(list, model.ListItem{
		GlobalItemID: "milk", Quantity: 2, QuantityUnit: "liter",
		ActualPrice: &price, PriceBasisQuantity: 6, Notes: "organic",
	}, "")

	if len(list.Items) != 1 {
		t.Fatalf("items = %d, want 1 after merge", len(list.Items))
	}
	if merged.ID != "a" {
		t.Errorf("surviving id = %q, want %q", merged.ID, "a")
	}
	if merged.Quantity != 3 {
		t.Errorf("quantity = %v, want 3", merged.Quantity)
	}
	if merged.ActualPrice == nil || *merged.ActualPrice != 1.99 {
		t.Errorf("actual price = %v, want 1.99", merged.ActualPrice)
	}
	if merged.PriceBasisQuantity != 6 {
		t.Errorf("price basis = %v, want 6", merged.PriceBasisQuantity)
	}
	if merged.Notes != "whole; organic" {
		t.Errorf("notes = %q, want %q", merged.Notes, "whole; organic")
	}
}

func TestUpsertIdempotentInsertion(t *testing.T) {
	// Adding the same (catalog item, unit) twice must yield one entry
	// whose quantity is the sum of both insertions.
	list := model.List{ID: "l1"}

	list, _ = Upsert(list, model.ListItem{GlobalItemID: "bread", Quantity: 1, QuantityUnit: "loaf", PriceBasisQuantity: 1}, "")
	list, final := Upsert(list, model.ListItem{GlobalItemID: "bread", Quantity: 1, QuantityUnit: "loaf", PriceBasisQuantity: 1}, "")

	if len(list.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(list.Items))
	}
	if final.Quantity != 2 {
		t.Errorf("quantity = %v, want 2", final.Quantity)
	}
}

func TestUpsertEditMergesIntoExisting(t *testing.T) {
	// Editing item "b" to collide with "a" merges it into "a" and
	// removes "b" from the list.
	list := model.List{ID: "l1", Items: []model.ListItem{
		{ID: "a", GlobalItemID: "milk", Quantity: 1, QuantityUnit: "liter", PriceBasisQuantity: 1},
		{ID: "b", GlobalItemID: "bread", Quantity: 2, QuantityUnit: "loaf", PriceBasisQuantity: 1},
	}}

	list, merged := Upsert(list, model.ListItem{
		ID: "b", GlobalItemID: "milk", Quantity: 2, QuantityUnit: "liter",
		PriceBasisQuantity: 1, Notes: "organic",
	}, "b")

	if len(list.Items) != 1 {
		t.Fatalf("items = %d, want 1 after edit-merge", len(list.Items))
	}
	if merged.ID != "a" {
		t.Errorf("surviving id = %q, want %q", merged.ID, "a")
	}
	if merged.Quantity != 3 {
		t.Errorf("quantity = %v, want 3", merged.Quantity)
	}
	if merged.Notes != "organic" {
		t.Errorf("notes = %q, want %q", merged.Notes, "organic")
	}
}

func TestUpsertEditWithoutCollisionUpdatesInPlace(t *testing.T) {
	list := model.List{ID: "l1", Items: []model.ListItem{
		{ID: "a", GlobalItemID: "milk", Quantity: 1, QuantityUnit: "liter", PriceBasisQuantity: 1},
		{ID: "b", GlobalItemID: "milk", Quantity: 6, QuantityUnit: "bottle", PriceBasisQuantity: 1},
	}}

	// Change b's unit to one that collides with nothing.
	list, updated := Upsert(list, model.ListItem{
		ID: "b", GlobalItemID: "milk", Quantity: 6, QuantityUnit: "carton", PriceBasisQuantity: 1,
	}, "b")

	if len(list.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(list.Items))
	}
	if updated.ID != "b" || updated.QuantityUnit != "carton" {
		t.Errorf("updated = %+v", updated)
	}
}

func TestJoinNotes(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"", "", ""},
		{"whole", "", "whole"},
		{"", "organic", "organic"},
		{"whole", "organic", "whole; organic"},
		{"same", "same", "same"},
	}
	for _, tt := range tests {
		if got := joinNotes(tt.a, tt.b); got != tt.want {
			t.Errorf("joinNotes(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}
