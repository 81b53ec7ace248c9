package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/larder/internal/model"
)

type UserStore struct {
	db DBTX
}

func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db}
}

func scanUser(s scanner) (*model.User, error) {
	var u model.User
	var prefs string
	err := s.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.Points, &u.Avatar, &prefs, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if prefs != "" && prefs != "{}" {
		u.Preferences = json.RawMessage(prefs)
	}
	return &u, nil
}

const userCols = `id, email, name, password_hash, role, points, avatar, preferences, created_at, updated_at`

// NormalizeEmail lower-cases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserStore) Create(ctx context.Context, email, name, passwordHash, role string) (*model.User, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, name, password_hash, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		NormalizeEmail(email), name, passwordHash, role, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = ?`, NormalizeEmail(email))
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *UserStore) UpdateProfile(ctx context.Context, id int64, name, avatar string, preferences json.RawMessage) (*model.User, error) {
	prefs := "{}"
	if len(preferences) > 0 {
		prefs = string(preferences)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = ?, avatar = ?, preferences = ?, updated_at = ? WHERE id = ?`,
		name, avatar, prefs, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// AddPoints credits delta points to the user.
func (s *UserStore) AddPoints(ctx context.Context, id int64, delta int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET points = points + ?, updated_at = ? WHERE id = ?`,
		delta, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("add points: %w", err)
	}
	return nil
}

// DebitPoints subtracts amount from the user's balance only if the balance
// covers it. It reports whether the debit happened.
func (s *UserStore) DebitPoints(ctx context.Context, id int64, amount int) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET points = points - ?, updated_at = ? WHERE id = ? AND points >= ?`,
		amount, time.Now().UTC(), id, amount,
	)
	if err != nil {
		return false, fmt.Errorf("debit points: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// HouseholdIDs returns the households the user belongs to, oldest membership first.
func (s *UserStore) HouseholdIDs(ctx context.Context, id int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT household_id FROM household_members WHERE user_id = ? ORDER BY id ASC`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("list user households: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var hid int64
		if err := rows.Scan(&hid); err != nil {
			return nil, fmt.Errorf("scan household id: %w", err)
		}
		ids = append(ids, hid)
	}
	return ids, rows.Err()
}
