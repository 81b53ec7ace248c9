package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/larder/internal/model"
)

type ListStore struct {
	db DBTX
}

func NewListStore(db DBTX) *ListStore {
	return &ListStore{db: db}
}

func scanList(s scanner) (*model.ShoppingList, error) {
	var l model.ShoppingList
	var householdID sql.NullInt64
	err := s.Scan(&l.ID, &l.Name, &l.Category, &l.UserID, &householdID, &l.TotalCents, &l.Version, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if householdID.Valid {
		l.HouseholdID = &householdID.Int64
	}
	l.TotalAmount = model.Amount(l.TotalCents)
	return &l, nil
}

func scanItem(s scanner) (*model.Item, error) {
	var it model.Item
	var price, addedBy sql.NullInt64
	err := s.Scan(&it.ID, &it.Name, &it.Quantity, &it.Category, &price, &it.Completed, &addedBy, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if price.Valid {
		setPrice(&it, &price.Int64)
	}
	if addedBy.Valid {
		it.AddedBy = &addedBy.Int64
	}
	return &it, nil
}

func setPrice(it *model.Item, cents *int64) {
	it.PriceCents = cents
	it.Price = nil
	if cents != nil {
		amount := model.Amount(*cents)
		it.Price = &amount
	}
}

const listCols = `l.id, l.name, l.category, l.owner_id, l.household_id, l.total_cents, l.version, l.created_at, l.updated_at`
const itemCols = `id, name, quantity, category, price_cents, completed, added_by, created_at, updated_at`

func (s *ListStore) Create(ctx context.Context, ownerID int64, name, category string, householdID *int64) (*model.ShoppingList, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO shopping_lists (name, category, owner_id, household_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		name, category, ownerID, householdID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert list: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns the list with its items (newest first) and shares, or nil
// if it does not exist.
func (s *ListStore) GetByID(ctx context.Context, id int64) (*model.ShoppingList, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+listCols+` FROM shopping_lists l WHERE l.id = ?`, id)
	l, err := scanList(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get list: %w", err)
	}
	if err := s.load(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// ListForUser returns the lists the user owns or that are shared with them,
// newest first.
func (s *ListStore) ListForUser(ctx context.Context, userID int64) ([]model.ShoppingList, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+listCols+`
		 FROM shopping_lists l
		 WHERE l.owner_id = ?
		    OR l.id IN (SELECT list_id FROM list_shares WHERE user_id = ?)
		 ORDER BY l.created_at DESC, l.id DESC`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list lists for user: %w", err)
	}

	lists := []model.ShoppingList{}
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan list: %w", err)
		}
		lists = append(lists, *l)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range lists {
		if err := s.load(ctx, &lists[i]); err != nil {
			return nil, err
		}
	}
	return lists, nil
}

func (s *ListStore) load(ctx context.Context, l *model.ShoppingList) error {
	var err error
	if l.Items, err = s.ListItems(ctx, l.ID); err != nil {
		return err
	}
	if l.SharedWith, err = s.ListShares(ctx, l.ID); err != nil {
		return err
	}
	return nil
}

// Update changes the list-level fields. The total is never set here.
func (s *ListStore) Update(ctx context.Context, id int64, name, category string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE shopping_lists SET name = ?, category = ?, version = version + 1, updated_at = ? WHERE id = ?`,
		name, category, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update list: %w", err)
	}
	return nil
}

func (s *ListStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM shopping_lists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	return nil
}

func (s *ListStore) ListItems(ctx context.Context, listID int64) ([]model.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemCols+` FROM list_items WHERE list_id = ? ORDER BY position DESC`, listID,
	)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := []model.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (s *ListStore) GetItem(ctx context.Context, listID int64, itemID string) (*model.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemCols+` FROM list_items WHERE list_id = ? AND id = ?`, listID, itemID,
	)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

// InsertItem places the item ahead of every existing item on the list.
func (s *ListStore) InsertItem(ctx context.Context, listID int64, it *model.Item) error {
	now := time.Now().UTC()
	it.CreatedAt, it.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO list_items (id, list_id, name, quantity, category, price_cents, completed, added_by, position, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM list_items WHERE list_id = ?), ?, ?)`,
		it.ID, listID, it.Name, it.Quantity, it.Category, it.PriceCents, it.Completed, it.AddedBy, listID, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (s *ListStore) UpdateItem(ctx context.Context, listID int64, it *model.Item) error {
	it.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE list_items SET name = ?, quantity = ?, category = ?, price_cents = ?, completed = ?, updated_at = ?
		 WHERE list_id = ? AND id = ?`,
		it.Name, it.Quantity, it.Category, it.PriceCents, it.Completed, it.UpdatedAt, listID, it.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// DeleteItem removes an item and reports whether it existed.
func (s *ListStore) DeleteItem(ctx context.Context, listID int64, itemID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM list_items WHERE list_id = ? AND id = ?`, listID, itemID)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *ListStore) DeleteCompletedItems(ctx context.Context, listID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM list_items WHERE list_id = ? AND completed = 1`, listID)
	if err != nil {
		return 0, fmt.Errorf("delete completed items: %w", err)
	}
	return result.RowsAffected()
}

// RecomputeTotal derives total_cents from the current items and bumps the
// list version. Call it in the same transaction as the item change.
func (s *ListStore) RecomputeTotal(ctx context.Context, listID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE shopping_lists
		 SET total_cents = (SELECT COALESCE(SUM(COALESCE(price_cents, 0) * quantity), 0) FROM list_items WHERE list_id = ?),
		     version = version + 1,
		     updated_at = ?
		 WHERE id = ?`,
		listID, time.Now().UTC(), listID,
	)
	if err != nil {
		return fmt.Errorf("recompute total: %w", err)
	}
	return nil
}

func (s *ListStore) ListShares(ctx context.Context, listID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM list_shares WHERE list_id = ? ORDER BY created_at ASC, user_id ASC`, listID,
	)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *ListStore) AddShare(ctx context.Context, listID, userID int64) error {
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO list_shares (list_id, user_id, created_at) VALUES (?, ?, ?)`, listID, userID, now,
	); err != nil {
		return fmt.Errorf("add share: %w", err)
	}
	return s.bump(ctx, listID, now)
}

// RemoveShare revokes a share and reports whether it existed.
func (s *ListStore) RemoveShare(ctx context.Context, listID, userID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM list_shares WHERE list_id = ? AND user_id = ?`, listID, userID)
	if err != nil {
		return false, fmt.Errorf("remove share: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	return true, s.bump(ctx, listID, time.Now().UTC())
}

func (s *ListStore) bump(ctx context.Context, listID int64, now time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE shopping_lists SET version = version + 1, updated_at = ? WHERE id = ?`, now, listID,
	); err != nil {
		return fmt.Errorf("bump list version: %w", err)
	}
	return nil
}
