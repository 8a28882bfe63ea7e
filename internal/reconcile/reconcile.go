// Package reconcile implements the item reconciliation algorithm: resolving
// free-text entries against the shared catalog and keeping each list
// normalized to at most one entry per (catalog item, unit) pair.
//
// All functions are pure over the document value; callers pass the document
// in and get the mutated value back. Nothing here touches storage or the
// network, which keeps the same code usable on both the server validation
// path and the client optimistic-apply path.
package reconcile

import (
	"strings"

	"github.com/hearthside/pantrysync/internal/model"
)

// ItemRef describes what the caller knows about the catalog entry an item
// should reference. GlobalItemID wins when set; otherwise Name/CategoryID
// drive a case-insensitive lookup, and a missing match creates a new
// catalog entry seeded from the remaining fields.
type ItemRef struct {
	GlobalItemID   string
	Name           string
	CategoryID     string
	EstimatedPrice float64
	PriceUnit      string
}

// Resolve returns the catalog item ID an item with the given reference
// should point at, creating a new catalog entry in doc when necessary.
// The (possibly extended) document is returned alongside the ID.
func Resolve(doc model.Document, ref ItemRef) (model.Document, string) {
	if ref.GlobalItemID != "" {
		if doc.FindCatalogItem(ref.GlobalItemID) != nil {
			return doc, ref.GlobalItemID
		}
	}

	name := strings.TrimSpace(ref.Name)
	categoryID := ref.CategoryID
	if categoryID == "" {
		categoryID = Categorize(name)
	}

	if existing := doc.FindCatalogItemByName(name, categoryID); existing != nil {
		return doc, existing.ID
	}

	created := model.CatalogItem{
		ID:             model.NewID(),
		Name:           name,
		CategoryID:     categoryID,
		EstimatedPrice: ref.EstimatedPrice,
		PriceUnit:      ref.PriceUnit,
	}
	doc.GlobalItems = append(doc.GlobalItems, created)
	return doc, created.ID
}

// Upsert inserts or merges item into the list's item set, keyed on
// (GlobalItemID, QuantityUnit). editingID names the entry being edited, or
// is empty for a new insertion; the entry it names is excluded from
// collision search and removed when the edit merges into another entry.
//
// Merge rules: quantities sum; a non-nil incoming actual price overwrites;
// PriceBasisQuantity takes the max; notes concatenate with "; " when both
// sides are non-empty. The returned item is the surviving entry.
func Upsert(list model.List, item model.ListItem, editingID string) (model.List, model.ListItem) {
	target := -1
	for i := range list.Items {
		existing := &list.Items[i]
		if existing.ID == editingID {
			continue
		}
		if existing.GlobalItemID == item.GlobalItemID && existing.QuantityUnit == item.QuantityUnit {
			target = i
			break
		}
	}

	if target < 0 {
		if editingID == "" {
			if item.ID == "" {
				item.ID = model.NewID()
			}
			list.Items = append(list.Items, item)
			return list, item
		}
		// Edit with no collision: update in place.
		for i := range list.Items {
			if list.Items[i].ID == editingID {
				item.ID = editingID
				list.Items[i] = item
				return list, item
			}
		}
		// Edited entry vanished underneath us (e.g. a concurrent rebase
		// removed it); treat as a fresh insert.
		if item.ID == "" {
			item.ID = model.NewID()
		}
		list.Items = append(list.Items, item)
		return list, item
	}

	merged := list.Items[target]
	merged.Quantity += item.Quantity
	if item.ActualPrice != nil {
		price := *item.ActualPrice
		merged.ActualPrice = &price
	}
	if item.PriceBasisQuantity > merged.PriceBasisQuantity {
		merged.PriceBasisQuantity = item.PriceBasisQuantity
	}
	merged.Notes = joinNotes(merged.Notes, item.Notes)
	merged.IsChecked = merged.IsChecked && item.IsChecked
	list.Items[target] = merged

	if editingID != "" {
		list.Items = removeItem(list.Items, editingID)
	}
	return list, merged
}

func joinNotes(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "" || a == b:
		return a
	default:
		return a + "; " + b
	}
}

func removeItem(items []model.ListItem, id string) []model.ListItem {
	for i := range items {
		if items[i].ID == id {
			return append(items[:i], items[i+1:]...)
		}
	}
	return items
}
