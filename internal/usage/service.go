// Package usage reports per-user and per-household counts and keeps short
// rolling samples of request activity.
package usage

import (
	"context"
	"database/sql"
	"time"

	"github.com/dukerupert/larder/internal/access"
	"github.com/dukerupert/larder/internal/apperror"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

type Service struct {
	db      *sql.DB
	timeout time.Duration
}

func NewService(db *sql.DB, timeout time.Duration) *Service {
	return &Service{db: db, timeout: timeout}
}

func (s *Service) UserMetrics(ctx context.Context, userID int64) (*model.UserMetrics, error) {
	var m *model.UserMetrics
	err := store.Run(ctx, s.db, s.timeout, func(st *store.Stores) error {
		var err error
		m, err = st.Usage.ForUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, apperror.Wrap(err)
	}
	return m, nil
}

// HouseholdMetrics requires the actor to be able to read the household.
func (s *Service) HouseholdMetrics(ctx context.Context, actorID, householdID int64) (*model.HouseholdMetrics, error) {
	var m *model.HouseholdMetrics
	err := store.Run(ctx, s.db, s.timeout, func(st *store.Stores) error {
		h, err := st.Households.GetByID(ctx, householdID)
		if err != nil {
			return err
		}
		if err := access.CheckHousehold(actorID, h, access.Read); err != nil {
			return err
		}
		m, err = st.Usage.ForHousehold(ctx, householdID)
		return err
	})
	if err != nil {
		return nil, apperror.Wrap(err)
	}
	return m, nil
}
