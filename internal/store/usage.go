package store

import (
	"context"
	"fmt"

	"github.com/dukerupert/larder/internal/model"
)

// UsageStore answers the aggregate counts behind the metrics endpoints.
type UsageStore struct {
	db DBTX
}

func NewUsageStore(db DBTX) *UsageStore {
	return &UsageStore{db: db}
}

const userListsFilter = `(owner_id = ? OR id IN (SELECT list_id FROM list_shares WHERE user_id = ?))`

func (s *UsageStore) ForUser(ctx context.Context, userID int64) (*model.UserMetrics, error) {
	var m model.UserMetrics
	err := s.db.QueryRowContext(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM shopping_lists WHERE `+userListsFilter+`),
		   (SELECT COUNT(*) FROM household_members WHERE user_id = ?),
		   (SELECT COUNT(*) FROM list_items WHERE list_id IN (SELECT id FROM shopping_lists WHERE `+userListsFilter+`))`,
		userID, userID, userID, userID, userID,
	).Scan(&m.TotalLists, &m.TotalHouseholds, &m.TotalItems)
	if err != nil {
		return nil, fmt.Errorf("user metrics: %w", err)
	}
	return &m, nil
}

func (s *UsageStore) ForHousehold(ctx context.Context, householdID int64) (*model.HouseholdMetrics, error) {
	var m model.HouseholdMetrics
	err := s.db.QueryRowContext(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM household_members WHERE household_id = ?),
		   (SELECT COUNT(*) FROM shopping_lists WHERE household_id = ?),
		   (SELECT COUNT(*) FROM list_items WHERE list_id IN (SELECT id FROM shopping_lists WHERE household_id = ?))`,
		householdID, householdID, householdID,
	).Scan(&m.TotalMembers, &m.TotalLists, &m.TotalItems)
	if err != nil {
		return nil, fmt.Errorf("household metrics: %w", err)
	}
	return &m, nil
}
