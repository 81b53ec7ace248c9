// Package reward runs the reward catalogue and point claims.
package reward

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/larder/internal/apperror"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

type Service struct {
	db      *sql.DB
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(db *sql.DB, timeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		db:      db,
		timeout: timeout,
		logger:  logger.With("component", "reward"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Input is the writable part of a reward.
type Input struct {
	Name        string     `json:"name" validate:"notblank,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	Points      int        `json:"points" validate:"gte=0"`
	Type        string     `json:"type" validate:"reward_type"`
	ExpiryDate  *time.Time `json:"expiryDate"`
	IsActive    *bool      `json:"isActive"`
}

func (s *Service) run(ctx context.Context, fn func(*store.Stores) error) error {
	return apperror.Wrap(store.Run(ctx, s.db, s.timeout, fn))
}

func requireAdmin(actor *model.User) error {
	if actor == nil || !actor.IsAdmin() {
		return apperror.Forbidden("admin access required")
	}
	return nil
}

func (in Input) reward() (*model.Reward, error) {
	r := &model.Reward{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Points:      in.Points,
		Type:        in.Type,
		ExpiryDate:  in.ExpiryDate,
		IsActive:    true,
	}
	if in.IsActive != nil {
		r.IsActive = *in.IsActive
	}
	if r.ExpiryDate != nil {
		utc := r.ExpiryDate.UTC()
		r.ExpiryDate = &utc
	}
	fields := map[string]string{}
	if r.Name == "" {
		fields["name"] = "is required"
	}
	if r.Points < 0 {
		fields["points"] = "must be 0 or more"
	}
	switch r.Type {
	case model.RewardTypeDiscount, model.RewardTypeCashback, model.RewardTypeProduct, model.RewardTypeService:
	default:
		fields["type"] = "must be one of: discount, cashback, product, service"
	}
	if len(fields) > 0 {
		return nil, apperror.Validation("validation failed", fields)
	}
	return r, nil
}

// Claim spends the user's points on a reward. The debit only happens when
// the balance covers the cost, so concurrent claims can never overdraw.
func (s *Service) Claim(ctx context.Context, userID, rewardID int64) (*model.User, *model.RewardClaim, error) {
	var (
		u     *model.User
		claim *model.RewardClaim
	)
	err := s.run(ctx, func(st *store.Stores) error {
		r, err := st.Rewards.GetByID(ctx, rewardID)
		if err != nil {
			return err
		}
		if r == nil {
			return apperror.NotFound("reward not found")
		}
		if !r.Claimable(s.now()) {
			return apperror.Validation("reward is not available", nil)
		}

		u, err = st.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return apperror.NotFound("user not found")
		}

		ok, err := st.Users.DebitPoints(ctx, userID, r.Points)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.InsufficientBalance("insufficient points")
		}
		if claim, err = st.Rewards.InsertClaim(ctx, userID, r); err != nil {
			return err
		}
		if err := st.Rewards.InsertTransaction(ctx, userID, -r.Points, model.PointsRedeemed, "claimed "+r.Name); err != nil {
			return err
		}

		if u, err = st.Users.GetByID(ctx, userID); err != nil {
			return err
		}
		if u.Households, err = st.Users.HouseholdIDs(ctx, userID); err != nil {
			return err
		}
		u.Claims, err = st.Rewards.ListClaims(ctx, userID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("reward claimed", "user_id", userID, "reward_id", rewardID, "points", claim.PointsSpent)
	return u, claim, nil
}

// Credit adds points to a user's balance. Only admins may credit.
func (s *Service) Credit(ctx context.Context, adminID, userID int64, points int, reason string) (*model.User, error) {
	if points <= 0 {
		return nil, apperror.Validation("validation failed", map[string]string{"points": "must be greater than 0"})
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "credited by admin"
	}

	var u *model.User
	err := s.run(ctx, func(st *store.Stores) error {
		admin, err := st.Users.GetByID(ctx, adminID)
		if err != nil {
			return err
		}
		if err := requireAdmin(admin); err != nil {
			return err
		}
		target, err := st.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if target == nil {
			return apperror.NotFound("user not found")
		}
		if err := st.Users.AddPoints(ctx, userID, points); err != nil {
			return err
		}
		if err := st.Rewards.InsertTransaction(ctx, userID, points, model.PointsEarned, reason); err != nil {
			return err
		}
		u, err = st.Users.GetByID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("points credited", "admin_id", adminID, "user_id", userID, "points", points)
	return u, nil
}

// History returns the user's point ledger, newest first.
func (s *Service) History(ctx context.Context, userID int64) ([]model.PointTransaction, error) {
	var txns []model.PointTransaction
	err := s.run(ctx, func(st *store.Stores) error {
		var err error
		txns, err = st.Rewards.ListTransactions(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// List returns claimable rewards. Admins may ask for every reward.
func (s *Service) List(ctx context.Context, actorID int64, all bool) ([]model.Reward, error) {
	var out []model.Reward
	err := s.run(ctx, func(st *store.Stores) error {
		if all {
			actor, err := st.Users.GetByID(ctx, actorID)
			if err != nil {
				return err
			}
			if err := requireAdmin(actor); err != nil {
				return err
			}
		}
		rewards, err := st.Rewards.List(ctx, !all)
		if err != nil {
			return err
		}
		if all {
			out = rewards
			return nil
		}
		now := s.now()
		out = make([]model.Reward, 0, len(rewards))
		for _, r := range rewards {
			if r.Claimable(now) {
				out = append(out, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, rewardID int64) (*model.Reward, error) {
	var r *model.Reward
	err := s.run(ctx, func(st *store.Stores) error {
		var err error
		if r, err = st.Rewards.GetByID(ctx, rewardID); err != nil {
			return err
		}
		if r == nil {
			return apperror.NotFound("reward not found")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) Create(ctx context.Context, actorID int64, in Input) (*model.Reward, error) {
	r, err := in.reward()
	if err != nil {
		return nil, err
	}
	var out *model.Reward
	err = s.run(ctx, func(st *store.Stores) error {
		actor, err := st.Users.GetByID(ctx, actorID)
		if err != nil {
			return err
		}
		if err := requireAdmin(actor); err != nil {
			return err
		}
		out, err = st.Rewards.Create(ctx, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("reward created", "reward_id", out.ID)
	return out, nil
}

// Update replaces the reward's writable fields.
func (s *Service) Update(ctx context.Context, actorID, rewardID int64, in Input) (*model.Reward, error) {
	r, err := in.reward()
	if err != nil {
		return nil, err
	}
	r.ID = rewardID

	var out *model.Reward
	err = s.run(ctx, func(st *store.Stores) error {
		actor, err := st.Users.GetByID(ctx, actorID)
		if err != nil {
			return err
		}
		if err := requireAdmin(actor); err != nil {
			return err
		}
		cur, err := st.Rewards.GetByID(ctx, rewardID)
		if err != nil {
			return err
		}
		if cur == nil {
			return apperror.NotFound("reward not found")
		}
		if in.IsActive == nil {
			r.IsActive = cur.IsActive
		}
		out, err = st.Rewards.Update(ctx, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, actorID, rewardID int64) error {
	err := s.run(ctx, func(st *store.Stores) error {
		actor, err := st.Users.GetByID(ctx, actorID)
		if err != nil {
			return err
		}
		if err := requireAdmin(actor); err != nil {
			return err
		}
		cur, err := st.Rewards.GetByID(ctx, rewardID)
		if err != nil {
			return err
		}
		if cur == nil {
			return apperror.NotFound("reward not found")
		}
		return st.Rewards.Delete(ctx, rewardID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("reward deleted", "reward_id", rewardID)
	return nil
}
