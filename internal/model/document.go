package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document is the single shared aggregate synchronized between clients.
// It is replaced wholesale on every write; Revision is the concurrency token.
type Document struct {
	Lists         []List        `json:"lists"`
	GlobalItems   []CatalogItem `json:"global_items"`
	Categories    []Category    `json:"categories"`
	ArchivedLists []List        `json:"archived_lists"`
	Receipts      []Receipt     `json:"receipts"`
	Revision      int64         `json:"revision"`
}

type List struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Items       []ListItem `json:"items"`
	IsCompleted bool       `json:"is_completed,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type ListItem struct {
	ID                 string   `json:"id"`
	GlobalItemID       string   `json:"global_item_id"`
	Quantity           float64  `json:"quantity"`
	QuantityUnit       string   `json:"quantity_unit"`
	ActualPrice        *float64 `json:"actual_price"`
	PriceBasisQuantity float64  `json:"price_basis_quantity"`
	Notes              string   `json:"notes"`
	IsChecked          bool     `json:"is_checked"`
}

// CatalogItem is a shared, de-duplicated item definition referenced by
// list items via GlobalItemID.
type CatalogItem struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	CategoryID     string  `json:"category_id"`
	EstimatedPrice float64 `json:"estimated_price"`
	PriceUnit      string  `json:"price_unit"`
}

type Category struct {
	ID    string            `json:"id"`
	Names map[string]string `json:"names"`
}

type Receipt struct {
	ID    string        `json:"id"`
	Store string        `json:"store"`
	Date  *time.Time    `json:"date"`
	Total float64       `json:"total"`
	Lines []ReceiptLine `json:"lines"`
}

type ReceiptLine struct {
	GlobalItemID string  `json:"global_item_id"`
	Quantity     float64 `json:"quantity"`
	Price        float64 `json:"price"`
}

// NewID returns a fresh entity ID.
func NewID() string {
	return uuid.NewString()
}

// DefaultDocument returns the empty document at revision 0 with the
// seed categories.
func DefaultDocument() Document {
	return Document{
		Lists:         []List{},
		GlobalItems:   []CatalogItem{},
		Categories:    SeedCategories(),
		ArchivedLists: []List{},
		Receipts:      []Receipt{},
		Revision:      0,
	}
}

// SeedCategories returns the built-in category set. IDs are stable slugs
// so clients can reference them without a lookup round-trip.
func SeedCategories() []Category {
	return []Category{
		{ID: "produce", Names: map[string]string{"en": "Produce", "de": "Obst & Gemüse"}},
		{ID: "dairy", Names: map[string]string{"en": "Dairy", "de": "Milchprodukte"}},
		{ID: "meat-seafood", Names: map[string]string{"en": "Meat & Seafood", "de": "Fleisch & Fisch"}},
		{ID: "bakery", Names: map[string]string{"en": "Bakery", "de": "Backwaren"}},
		{ID: "pantry", Names: map[string]string{"en": "Pantry", "de": "Vorratskammer"}},
		{ID: "frozen", Names: map[string]string{"en": "Frozen", "de": "Tiefkühl"}},
		{ID: "beverages", Names: map[string]string{"en": "Beverages", "de": "Getränke"}},
		{ID: "snacks", Names: map[string]string{"en": "Snacks", "de": "Snacks"}},
		{ID: "household", Names: map[string]string{"en": "Household", "de": "Haushalt"}},
		{ID: "personal-care", Names: map[string]string{"en": "Personal Care", "de": "Körperpflege"}},
		{ID: "other", Names: map[string]string{"en": "Other", "de": "Sonstiges"}},
	}
}

// Clone returns a deep copy. Snapshots handed out by the store and kept
// on undo stacks must never alias the live document.
func (d Document) Clone() Document {
	out := d
	out.Lists = cloneLists(d.Lists)
	out.ArchivedLists = cloneLists(d.ArchivedLists)

	out.GlobalItems = make([]CatalogItem, len(d.GlobalItems))
	copy(out.GlobalItems, d.GlobalItems)

	out.Categories = make([]Category, len(d.Categories))
	for i, c := range d.Categories {
		cc := c
		cc.Names = make(map[string]string, len(c.Names))
		for k, v := range c.Names {
			cc.Names[k] = v
		}
		out.Categories[i] = cc
	}

	out.Receipts = make([]Receipt, len(d.Receipts))
	for i, r := range d.Receipts {
		rr := r
		if r.Date != nil {
			date := *r.Date
			rr.Date = &date
		}
		rr.Lines = make([]ReceiptLine, len(r.Lines))
		copy(rr.Lines, r.Lines)
		out.Receipts[i] = rr
	}

	return out
}

func cloneLists(lists []List) []List {
	out := make([]List, len(lists))
	for i, l := range lists {
		ll := l
		if l.CompletedAt != nil {
			at := *l.CompletedAt
			ll.CompletedAt = &at
		}
		ll.Items = make([]ListItem, len(l.Items))
		for j, item := range l.Items {
			ii := item
			if item.ActualPrice != nil {
				p := *item.ActualPrice
				ii.ActualPrice = &p
			}
			ll.Items[j] = ii
		}
		out[i] = ll
	}
	return out
}

// FindCatalogItem looks up a catalog item by ID.
func (d Document) FindCatalogItem(id string) *CatalogItem {
	for i := range d.GlobalItems {
		if d.GlobalItems[i].ID == id {
			return &d.GlobalItems[i]
		}
	}
	return nil
}

// FindCatalogItemByName performs a case-insensitive (name, category) lookup.
func (d Document) FindCatalogItemByName(name, categoryID string) *CatalogItem {
	for i := range d.GlobalItems {
		g := &d.GlobalItems[i]
		if strings.EqualFold(g.Name, name) && g.CategoryID == categoryID {
			return g
		}
	}
	return nil
}

// FindList looks up an active list by ID.
func (d Document) FindList(id string) *List {
	for i := range d.Lists {
		if d.Lists[i].ID == id {
			return &d.Lists[i]
		}
	}
	return nil
}

// Validate checks the structural invariants of a document before it is
// accepted by the store.
func (d Document) Validate() error {
	if d.Revision < 0 {
		return fmt.Errorf("revision must be non-negative, got %d", d.Revision)
	}
	for _, lists := range [][]List{d.Lists, d.ArchivedLists} {
		for _, l := range lists {
			if l.ID == "" {
				return fmt.Errorf("list %q: missing id", l.Name)
			}
			seen := make(map[[2]string]bool, len(l.Items))
			for _, item := range l.Items {
				if item.ID == "" {
					return fmt.Errorf("list %q: item missing id", l.Name)
				}
				if d.FindCatalogItem(item.GlobalItemID) == nil {
					return fmt.Errorf("list %q: item %s references unknown catalog item %q", l.Name, item.ID, item.GlobalItemID)
				}
				if item.Quantity <= 0 {
					return fmt.Errorf("list %q: item %s has non-positive quantity %v", l.Name, item.ID, item.Quantity)
				}
				if item.PriceBasisQuantity <= 0 {
					return fmt.Errorf("list %q: item %s has non-positive price basis quantity %v", l.Name, item.ID, item.PriceBasisQuantity)
				}
				key := [2]string{item.GlobalItemID, item.QuantityUnit}
				if seen[key] {
					return fmt.Errorf("list %q: duplicate entry for catalog item %q unit %q", l.Name, item.GlobalItemID, item.QuantityUnit)
				}
				seen[key] = true
			}
		}
	}
	return nil
}
