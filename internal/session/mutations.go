package session

import (
	"fmt"
	"time"

	"github.com/hearthside/pantrysync/internal/model"
	"github.com/hearthside/pantrysync/internal/reconcile"
)

// Mutation constructors for the standard document edits. Each returns a
// pure intent that can be reapplied after a conflict rebase; item
// operations go through the reconciliation engine, so a rebased replay
// merges into whatever the list holds by then.

// CreateList adds an empty list with the given name.
func CreateList(name string) Mutation {
	id := model.NewID()
	return func(doc model.Document) (model.Document, error) {
		doc.Lists = append(doc.Lists, model.List{ID: id, Name: name, Items: []model.ListItem{}})
		return doc, nil
	}
}

// DeleteList removes a list outright.
func DeleteList(listID string) Mutation {
	return func(doc model.Document) (model.Document, error) {
		for i := range doc.Lists {
			if doc.Lists[i].ID == listID {
				doc.Lists = append(doc.Lists[:i], doc.Lists[i+1:]...)
				return doc, nil
			}
		}
		return doc, fmt.Errorf("list %q not found", listID)
	}
}

// CompleteList marks a list completed and moves it to the archive.
func CompleteList(listID string, now time.Time) Mutation {
	return func(doc model.Document) (model.Document, error) {
		for i := range doc.Lists {
			if doc.Lists[i].ID == listID {
				l := doc.Lists[i]
				l.IsCompleted = true
				at := now.UTC()
				l.CompletedAt = &at
				doc.Lists = append(doc.Lists[:i], doc.Lists[i+1:]...)
				doc.ArchivedLists = append(doc.ArchivedLists, l)
				return doc, nil
			}
		}
		return doc, fmt.Errorf("list %q not found", listID)
	}
}

// ItemEdit carries the caller-supplied fields of an item insert or edit.
type ItemEdit struct {
	Ref                reconcile.ItemRef
	Quantity           float64
	QuantityUnit       string
	ActualPrice        *float64
	PriceBasisQuantity float64
	Notes              string
	IsChecked          bool
}

// AddItem inserts an item into a list, resolving the catalog reference
// and merging into an existing (catalog item, unit) entry when present.
func AddItem(listID string, edit ItemEdit) Mutation {
	return upsertItem(listID, "", edit)
}

// EditItem replaces the named item's fields, merging into a colliding
// entry when the edit lands on an occupied (catalog item, unit) pair.
func EditItem(listID, itemID string, edit ItemEdit) Mutation {
	return upsertItem(listID, itemID, edit)
}

func upsertItem(listID, editingID string, edit ItemEdit) Mutation {
	return func(doc model.Document) (model.Document, error) {
		list := doc.FindList(listID)
		if list == nil {
			return doc, fmt.Errorf("list %q not found", listID)
		}

		doc, globalItemID := reconcile.Resolve(doc, edit.Ref)

		basis := edit.PriceBasisQuantity
		if basis <= 0 {
			basis = 1
		}
		item := model.ListItem{
			ID:                 editingID,
			GlobalItemID:       globalItemID,
			Quantity:           edit.Quantity,
			QuantityUnit:       edit.QuantityUnit,
			ActualPrice:        edit.ActualPrice,
			PriceBasisQuantity: basis,
			Notes:              edit.Notes,
			IsChecked:          edit.IsChecked,
		}

		updated, _ := reconcile.Upsert(*list, item, editingID)
		*list = updated
		return doc, nil
	}
}

// ToggleItemChecked flips an item's checked state.
func ToggleItemChecked(listID, itemID string) Mutation {
	return func(doc model.Document) (model.Document, error) {
		list := doc.FindList(listID)
		if list == nil {
			return doc, fmt.Errorf("list %q not found", listID)
		}
		for i := range list.Items {
			if list.Items[i].ID == itemID {
				list.Items[i].IsChecked = !list.Items[i].IsChecked
				return doc, nil
			}
		}
		return doc, fmt.Errorf("item %q not found in list %q", itemID, listID)
	}
}

// RemoveItem deletes an item from a list.
func RemoveItem(listID, itemID string) Mutation {
	return func(doc model.Document) (model.Document, error) {
		list := doc.FindList(listID)
		if list == nil {
			return doc, fmt.Errorf("list %q not found", listID)
		}
		for i := range list.Items {
			if list.Items[i].ID == itemID {
				list.Items = append(list.Items[:i], list.Items[i+1:]...)
				return doc, nil
			}
		}
		return doc, fmt.Errorf("item %q not found in list %q", itemID, listID)
	}
}

// AddReceipt records a completed purchase.
func AddReceipt(receipt model.Receipt) Mutation {
	if receipt.ID == "" {
		receipt.ID = model.NewID()
	}
	return func(doc model.Document) (model.Document, error) {
		doc.Receipts = append(doc.Receipts, receipt)
		return doc, nil
	}
}
