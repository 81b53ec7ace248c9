package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/larder/internal/model"
)

type HouseholdStore struct {
	db DBTX
}

func NewHouseholdStore(db DBTX) *HouseholdStore {
	return &HouseholdStore{db: db}
}

func scanHousehold(s scanner) (*model.Household, error) {
	var h model.Household
	err := s.Scan(&h.ID, &h.Name, &h.Description, &h.OwnerID,
		&h.Settings.Notifications, &h.Settings.ShoppingReminders, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

const householdCols = `h.id, h.name, h.description, h.owner_id, h.notifications, h.shopping_reminders, h.created_at, h.updated_at`

// Create inserts the household together with its owner membership. Run it
// inside InTx so both rows land or neither does.
func (s *HouseholdStore) Create(ctx context.Context, ownerID int64, name, description string) (*model.Household, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO households (name, description, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		name, description, ownerID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert household: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	if err := s.AddMember(ctx, id, ownerID, model.RoleOwner); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

// GetByID returns the household with its members, or nil if it does not exist.
func (s *HouseholdStore) GetByID(ctx context.Context, id int64) (*model.Household, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+householdCols+` FROM households h WHERE h.id = ?`, id)
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	if h.Members, err = s.ListMembers(ctx, id); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *HouseholdStore) Update(ctx context.Context, id int64, name, description string, settings model.HouseholdSettings) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE households SET name = ?, description = ?, notifications = ?, shopping_reminders = ?, updated_at = ? WHERE id = ?`,
		name, description, settings.Notifications, settings.ShoppingReminders, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update household: %w", err)
	}
	return nil
}

// Delete detaches every member and list from the household and removes it.
func (s *HouseholdStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM household_members WHERE household_id = ?`, id); err != nil {
		return fmt.Errorf("delete household members: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE shopping_lists SET household_id = NULL WHERE household_id = ?`, id); err != nil {
		return fmt.Errorf("detach household lists: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM households WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete household: %w", err)
	}
	return nil
}

func (s *HouseholdStore) AddMember(ctx context.Context, householdID, userID int64, role string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO household_members (household_id, user_id, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		householdID, userID, role, now, now,
	)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return s.touch(ctx, householdID)
}

// RemoveMember deletes the membership and reports whether one existed.
func (s *HouseholdStore) RemoveMember(ctx context.Context, householdID, userID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM household_members WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("remove member: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	return true, s.touch(ctx, householdID)
}

// UpdateMemberRole changes a member's role and reports whether the member existed.
func (s *HouseholdStore) UpdateMemberRole(ctx context.Context, householdID, userID int64, role string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE household_members SET role = ?, updated_at = ? WHERE household_id = ? AND user_id = ?`,
		role, time.Now().UTC(), householdID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("update member role: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	return true, s.touch(ctx, householdID)
}

func (s *HouseholdStore) ListMembers(ctx context.Context, householdID int64) ([]model.HouseholdMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hm.user_id, u.name, u.email, hm.role, hm.created_at
		 FROM household_members hm
		 JOIN users u ON u.id = hm.user_id
		 WHERE hm.household_id = ?
		 ORDER BY hm.id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := []model.HouseholdMember{}
	for rows.Next() {
		var m model.HouseholdMember
		if err := rows.Scan(&m.UserID, &m.Name, &m.Email, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListForUser returns every household the user is a member of, with members loaded.
func (s *HouseholdStore) ListForUser(ctx context.Context, userID int64) ([]model.Household, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+householdCols+`
		 FROM households h
		 JOIN household_members hm ON h.id = hm.household_id
		 WHERE hm.user_id = ?
		 ORDER BY h.created_at DESC, h.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list households for user: %w", err)
	}

	households := []model.Household{}
	for rows.Next() {
		h, err := scanHousehold(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan household: %w", err)
		}
		households = append(households, *h)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Members are loaded after the cursor closes; the pool has one connection.
	for i := range households {
		if households[i].Members, err = s.ListMembers(ctx, households[i].ID); err != nil {
			return nil, err
		}
	}
	return households, nil
}

func (s *HouseholdStore) touch(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE households SET updated_at = ? WHERE id = ?`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("touch household: %w", err)
	}
	return nil
}
