// Package persist adapts a SQLite database to the document store's
// load-all / atomic replace-all contract. The document is small enough
// that rewriting every collection inside one transaction is cheaper and
// simpler than diffing rows against the previous state.
package persist

import (
	"database/sql"
	"fmt"

	"github.com/hearthside/pantrysync/internal/model"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Load reassembles the document from the five collection tables. ok is
// false when no document has ever been persisted (fresh database).
func (s *SQLite) Load() (model.Document, int64, bool, error) {
	var doc model.Document

	var revision int64
	err := s.db.QueryRow(`SELECT revision FROM document_meta WHERE id = 1`).Scan(&revision)
	if err == sql.ErrNoRows {
		return doc, 0, false, nil
	}
	if err != nil {
		return doc, 0, false, fmt.Errorf("load revision: %w", err)
	}

	active, archived, err := s.loadLists()
	if err != nil {
		return doc, 0, false, err
	}
	doc.Lists = active
	doc.ArchivedLists = archived

	if doc.GlobalItems, err = s.loadGlobalItems(); err != nil {
		return doc, 0, false, err
	}
	if doc.Categories, err = s.loadCategories(); err != nil {
		return doc, 0, false, err
	}
	if doc.Receipts, err = s.loadReceipts(); err != nil {
		return doc, 0, false, err
	}
	doc.Revision = revision

	return doc, revision, true, nil
}

// Replace rewrites all persisted state with doc at revision in a single
// transaction, so a crash mid-write never leaves a partial document.
func (s *SQLite) Replace(doc model.Document, revision int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"receipt_lines", "receipts", "list_items", "lists", "category_names", "categories", "global_items"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i, g := range doc.GlobalItems {
		_, err := tx.Exec(
			`INSERT INTO global_items (id, name, category_id, estimated_price, price_unit) VALUES (?, ?, ?, ?, ?)`,
			g.ID, g.Name, g.CategoryID, g.EstimatedPrice, g.PriceUnit,
		)
		if err != nil {
			return fmt.Errorf("insert global item %d: %w", i, err)
		}
	}

	for i, c := range doc.Categories {
		if _, err := tx.Exec(`INSERT INTO categories (id, sort_order) VALUES (?, ?)`, c.ID, i); err != nil {
			return fmt.Errorf("insert category %q: %w", c.ID, err)
		}
		for locale, name := range c.Names {
			_, err := tx.Exec(
				`INSERT INTO category_names (category_id, locale, name) VALUES (?, ?, ?)`,
				c.ID, locale, name,
			)
			if err != nil {
				return fmt.Errorf("insert category name %q/%q: %w", c.ID, locale, err)
			}
		}
	}

	if err := insertLists(tx, doc.Lists, false); err != nil {
		return err
	}
	if err := insertLists(tx, doc.ArchivedLists, true); err != nil {
		return err
	}

	for i, r := range doc.Receipts {
		_, err := tx.Exec(
			`INSERT INTO receipts (id, store, date, total, sort_order) VALUES (?, ?, ?, ?, ?)`,
			r.ID, r.Store, r.Date, r.Total, i,
		)
		if err != nil {
			return fmt.Errorf("insert receipt %q: %w", r.ID, err)
		}
		for j, line := range r.Lines {
			_, err := tx.Exec(
				`INSERT INTO receipt_lines (receipt_id, global_item_id, quantity, price, sort_order) VALUES (?, ?, ?, ?, ?)`,
				r.ID, line.GlobalItemID, line.Quantity, line.Price, j,
			)
			if err != nil {
				return fmt.Errorf("insert receipt line %q/%d: %w", r.ID, j, err)
			}
		}
	}

	_, err = tx.Exec(
		`INSERT INTO document_meta (id, revision, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (id) DO UPDATE SET revision = excluded.revision, updated_at = CURRENT_TIMESTAMP`,
		revision,
	)
	if err != nil {
		return fmt.Errorf("update revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

func insertLists(tx *sql.Tx, lists []model.List, archived bool) error {
	for i, l := range lists {
		_, err := tx.Exec(
			`INSERT INTO lists (id, name, is_completed, completed_at, is_archived, sort_order) VALUES (?, ?, ?, ?, ?, ?)`,
			l.ID, l.Name, l.IsCompleted, l.CompletedAt, archived, i,
		)
		if err != nil {
			return fmt.Errorf("insert list %q: %w", l.ID, err)
		}
		for j, item := range l.Items {
			_, err := tx.Exec(
				`INSERT INTO list_items (id, list_id, global_item_id, quantity, quantity_unit, actual_price, price_basis_quantity, notes, is_checked, sort_order)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				item.ID, l.ID, item.GlobalItemID, item.Quantity, item.QuantityUnit,
				item.ActualPrice, item.PriceBasisQuantity, item.Notes, item.IsChecked, j,
			)
			if err != nil {
				return fmt.Errorf("insert list item %q: %w", item.ID, err)
			}
		}
	}
	return nil
}

func (s *SQLite) loadLists() (active, archived []model.List, err error) {
	rows, err := s.db.Query(`SELECT id, name, is_completed, completed_at, is_archived FROM lists ORDER BY is_archived ASC, sort_order ASC`)
	if err != nil {
		return nil, nil, fmt.Errorf("load lists: %w", err)
	}
	defer rows.Close()

	active, archived = []model.List{}, []model.List{}
	index := make(map[string]*[]model.List)
	for rows.Next() {
		var l model.List
		var completedAt sql.NullTime
		var isArchived bool
		if err := rows.Scan(&l.ID, &l.Name, &l.IsCompleted, &completedAt, &isArchived); err != nil {
			return nil, nil, fmt.Errorf("scan list: %w", err)
		}
		if completedAt.Valid {
			at := completedAt.Time
			l.CompletedAt = &at
		}
		l.Items = []model.ListItem{}
		if isArchived {
			archived = append(archived, l)
			index[l.ID] = &archived
		} else {
			active = append(active, l)
			index[l.ID] = &active
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("load lists: %w", err)
	}

	itemRows, err := s.db.Query(`SELECT id, list_id, global_item_id, quantity, quantity_unit, actual_price, price_basis_quantity, notes, is_checked FROM list_items ORDER BY list_id, sort_order ASC`)
	if err != nil {
		return nil, nil, fmt.Errorf("load list items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item model.ListItem
		var listID string
		var actualPrice sql.NullFloat64
		err := itemRows.Scan(
			&item.ID, &listID, &item.GlobalItemID, &item.Quantity, &item.QuantityUnit,
			&actualPrice, &item.PriceBasisQuantity, &item.Notes, &item.IsChecked,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("scan list item: %w", err)
		}
		if actualPrice.Valid {
			p := actualPrice.Float64
			item.ActualPrice = &p
		}
		bucket, ok := index[listID]
		if !ok {
			continue
		}
		for i := range *bucket {
			if (*bucket)[i].ID == listID {
				(*bucket)[i].Items = append((*bucket)[i].Items, item)
				break
			}
		}
	}
	return active, archived, itemRows.Err()
}

func (s *SQLite) loadGlobalItems() ([]model.CatalogItem, error) {
	rows, err := s.db.Query(`SELECT id, name, category_id, estimated_price, price_unit FROM global_items ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("load global items: %w", err)
	}
	defer rows.Close()

	items := []model.CatalogItem{}
	for rows.Next() {
		var g model.CatalogItem
		if err := rows.Scan(&g.ID, &g.Name, &g.CategoryID, &g.EstimatedPrice, &g.PriceUnit); err != nil {
			return nil, fmt.Errorf("scan global item: %w", err)
		}
		items = append(items, g)
	}
	return items, rows.Err()
}

func (s *SQLite) loadCategories() ([]model.Category, error) {
	rows, err := s.db.Query(`SELECT id FROM categories ORDER BY sort_order ASC`)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	defer rows.Close()

	categories := []model.Category{}
	byID := make(map[string]int)
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Names = map[string]string{}
		byID[c.ID] = len(categories)
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	nameRows, err := s.db.Query(`SELECT category_id, locale, name FROM category_names`)
	if err != nil {
		return nil, fmt.Errorf("load category names: %w", err)
	}
	defer nameRows.Close()

	for nameRows.Next() {
		var id, locale, name string
		if err := nameRows.Scan(&id, &locale, &name); err != nil {
			return nil, fmt.Errorf("scan category name: %w", err)
		}
		if i, ok := byID[id]; ok {
			categories[i].Names[locale] = name
		}
	}
	return categories, nameRows.Err()
}

func (s *SQLite) loadReceipts() ([]model.Receipt, error) {
	rows, err := s.db.Query(`SELECT id, store, date, total FROM receipts ORDER BY sort_order ASC`)
	if err != nil {
		return nil, fmt.Errorf("load receipts: %w", err)
	}
	defer rows.Close()

	receipts := []model.Receipt{}
	byID := make(map[string]int)
	for rows.Next() {
		var r model.Receipt
		var date sql.NullTime
		if err := rows.Scan(&r.ID, &r.Store, &date, &r.Total); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		if date.Valid {
			d := date.Time
			r.Date = &d
		}
		r.Lines = []model.ReceiptLine{}
		byID[r.ID] = len(receipts)
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load receipts: %w", err)
	}

	lineRows, err := s.db.Query(`SELECT receipt_id, global_item_id, quantity, price FROM receipt_lines ORDER BY receipt_id, sort_order ASC`)
	if err != nil {
		return nil, fmt.Errorf("load receipt lines: %w", err)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var receiptID string
		var line model.ReceiptLine
		if err := lineRows.Scan(&receiptID, &line.GlobalItemID, &line.Quantity, &line.Price); err != nil {
			return nil, fmt.Errorf("scan receipt line: %w", err)
		}
		if i, ok := byID[receiptID]; ok {
			receipts[i].Lines = append(receipts[i].Lines, line)
		}
	}
	return receipts, lineRows.Err()
}
