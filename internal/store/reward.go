package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/larder/internal/model"
)

type RewardStore struct {
	db DBTX
}

func NewRewardStore(db DBTX) *RewardStore {
	return &RewardStore{db: db}
}

func scanReward(s scanner) (*model.Reward, error) {
	var r model.Reward
	var expiry sql.NullTime
	err := s.Scan(&r.ID, &r.Name, &r.Description, &r.Points, &r.Type, &expiry, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if expiry.Valid {
		r.ExpiryDate = &expiry.Time
	}
	return &r, nil
}

const rewardCols = `id, name, description, points, type, expiry_date, is_active, created_at, updated_at`

func (s *RewardStore) Create(ctx context.Context, r *model.Reward) (*model.Reward, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO rewards (name, description, points, type, expiry_date, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Name, r.Description, r.Points, r.Type, r.ExpiryDate, r.IsActive, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *RewardStore) GetByID(ctx context.Context, id int64) (*model.Reward, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

// List returns rewards cheapest first. With activeOnly set, inactive rewards
// are skipped; expiry is left to the caller.
func (s *RewardStore) List(ctx context.Context, activeOnly bool) ([]model.Reward, error) {
	query := `SELECT ` + rewardCols + ` FROM rewards`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY points ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	rewards := []model.Reward{}
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func (s *RewardStore) Update(ctx context.Context, r *model.Reward) (*model.Reward, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rewards SET name = ?, description = ?, points = ?, type = ?, expiry_date = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		r.Name, r.Description, r.Points, r.Type, r.ExpiryDate, r.IsActive, time.Now().UTC(), r.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	return s.GetByID(ctx, r.ID)
}

func (s *RewardStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rewards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	return nil
}

// InsertClaim records that userID claimed r. The point debit is the caller's job.
func (s *RewardStore) InsertClaim(ctx context.Context, userID int64, r *model.Reward) (*model.RewardClaim, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO reward_claims (user_id, reward_id, reward_name, points_spent, claimed_at) VALUES (?, ?, ?, ?, ?)`,
		userID, r.ID, r.Name, r.Points, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert claim: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	rewardID := r.ID
	return &model.RewardClaim{
		ID:          id,
		UserID:      userID,
		RewardID:    &rewardID,
		RewardName:  r.Name,
		PointsSpent: r.Points,
		ClaimedAt:   now,
	}, nil
}

func (s *RewardStore) ListClaims(ctx context.Context, userID int64) ([]model.RewardClaim, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, reward_id, reward_name, points_spent, claimed_at
		 FROM reward_claims WHERE user_id = ? ORDER BY claimed_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	claims := []model.RewardClaim{}
	for rows.Next() {
		var c model.RewardClaim
		var rewardID sql.NullInt64
		if err := rows.Scan(&c.ID, &c.UserID, &rewardID, &c.RewardName, &c.PointsSpent, &c.ClaimedAt); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		if rewardID.Valid {
			c.RewardID = &rewardID.Int64
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func (s *RewardStore) InsertTransaction(ctx context.Context, userID int64, delta int, kind, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO point_transactions (user_id, delta, kind, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, delta, kind, reason, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert point transaction: %w", err)
	}
	return nil
}

func (s *RewardStore) ListTransactions(ctx context.Context, userID int64) ([]model.PointTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, delta, kind, reason, created_at
		 FROM point_transactions WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list point transactions: %w", err)
	}
	defer rows.Close()

	txns := []model.PointTransaction{}
	for rows.Next() {
		var t model.PointTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Delta, &t.Kind, &t.Reason, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan point transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}
