// Package household owns households, their membership and member roles.
package household

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/larder/internal/access"
	"github.com/dukerupert/larder/internal/apperror"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

// Notifier delivers the "added to household" message.
type Notifier interface {
	Configured() bool
	SendHouseholdAdded(ctx context.Context, toEmail, householdName, addedBy string) error
}

type Registry struct {
	db       *sql.DB
	timeout  time.Duration
	notifier Notifier
	logger   *slog.Logger
}

// NewRegistry builds a Registry. notifier may be nil.
func NewRegistry(db *sql.DB, timeout time.Duration, notifier Notifier, logger *slog.Logger) *Registry {
	return &Registry{
		db:       db,
		timeout:  timeout,
		notifier: notifier,
		logger:   logger.With("component", "household"),
	}
}

// Patch holds the fields Update may change. Nil fields are left alone.
type Patch struct {
	Name        *string
	Description *string
	Settings    *model.HouseholdSettings
}

func (r *Registry) run(ctx context.Context, fn func(*store.Stores) error) error {
	return apperror.Wrap(store.Run(ctx, r.db, r.timeout, fn))
}

func (r *Registry) authorize(actorID, householdID int64, h *model.Household, need access.Need) error {
	err := access.CheckHousehold(actorID, h, need)
	if apperror.Is(err, apperror.KindForbidden) {
		r.logger.Warn("household access denied", "actor_id", actorID, "household_id", householdID)
	}
	return err
}

// load fetches the household and checks the actor may use it.
func (r *Registry) load(ctx context.Context, s *store.Stores, actorID, householdID int64, need access.Need) (*model.Household, error) {
	h, err := s.Households.GetByID(ctx, householdID)
	if err != nil {
		return nil, err
	}
	if err := r.authorize(actorID, householdID, h, need); err != nil {
		return nil, err
	}
	return h, nil
}

func (r *Registry) Create(ctx context.Context, ownerID int64, name, description string) (*model.Household, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.Validation("validation failed", map[string]string{"name": "is required"})
	}

	var h *model.Household
	err := r.run(ctx, func(s *store.Stores) error {
		var err error
		h, err = s.Households.Create(ctx, ownerID, name, strings.TrimSpace(description))
		return err
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("household created", "household_id", h.ID, "owner_id", ownerID)
	return h, nil
}

// AddMember adds the user registered under email. An empty role means member.
func (r *Registry) AddMember(ctx context.Context, actorID, householdID int64, email, role string) (*model.Household, error) {
	if role == "" {
		role = model.RoleMember
	}
	if role != model.RoleAdmin && role != model.RoleMember {
		return nil, apperror.Validation("validation failed", map[string]string{"role": "must be admin or member"})
	}

	var (
		h       *model.Household
		added   *model.User
		actName string
	)
	err := r.run(ctx, func(s *store.Stores) error {
		cur, err := r.load(ctx, s, actorID, householdID, access.Write)
		if err != nil {
			return err
		}
		added, err = s.Users.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if added == nil {
			return apperror.NotFound("user not found")
		}
		if _, ok := cur.Member(added.ID); ok {
			return apperror.Conflict("user is already a member of this household")
		}
		if err := s.Households.AddMember(ctx, householdID, added.ID, role); err != nil {
			return err
		}
		if actor, err := s.Users.GetByID(ctx, actorID); err == nil && actor != nil {
			actName = actor.Name
		}
		h, err = s.Households.GetByID(ctx, householdID)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("household member added", "household_id", householdID, "user_id", added.ID, "role", role)
	r.notifyAdded(ctx, added.Email, h.Name, actName)
	return h, nil
}

func (r *Registry) notifyAdded(ctx context.Context, to, householdName, addedBy string) {
	if r.notifier == nil || !r.notifier.Configured() {
		return
	}
	if err := r.notifier.SendHouseholdAdded(ctx, to, householdName, addedBy); err != nil {
		r.logger.Warn("household email failed", "to", to, "error", err)
	}
}

func (r *Registry) RemoveMember(ctx context.Context, actorID, householdID, memberID int64) (*model.Household, error) {
	var h *model.Household
	err := r.run(ctx, func(s *store.Stores) error {
		cur, err := r.load(ctx, s, actorID, householdID, access.Write)
		if err != nil {
			return err
		}
		if memberID == cur.OwnerID {
			return apperror.InvalidOperation("the owner cannot be removed from the household")
		}
		ok, err := s.Households.RemoveMember(ctx, householdID, memberID)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.NotFound("member not found")
		}
		h, err = s.Households.GetByID(ctx, householdID)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("household member removed", "household_id", householdID, "user_id", memberID)
	return h, nil
}

func (r *Registry) UpdateMemberRole(ctx context.Context, actorID, householdID, memberID int64, role string) (*model.Household, error) {
	if !model.ValidRole(role) {
		return nil, apperror.Validation("validation failed", map[string]string{"role": "must be owner, admin or member"})
	}

	var h *model.Household
	err := r.run(ctx, func(s *store.Stores) error {
		cur, err := r.load(ctx, s, actorID, householdID, access.Write)
		if err != nil {
			return err
		}
		if role == model.RoleOwner {
			return apperror.InvalidOperation("ownership cannot be assigned")
		}
		if memberID == cur.OwnerID {
			return apperror.InvalidOperation("the owner's role cannot be changed")
		}
		ok, err := s.Households.UpdateMemberRole(ctx, householdID, memberID, role)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.NotFound("member not found")
		}
		h, err = s.Households.GetByID(ctx, householdID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (r *Registry) Update(ctx context.Context, actorID, householdID int64, p Patch) (*model.Household, error) {
	var h *model.Household
	err := r.run(ctx, func(s *store.Stores) error {
		cur, err := r.load(ctx, s, actorID, householdID, access.Write)
		if err != nil {
			return err
		}
		name, desc, settings := cur.Name, cur.Description, cur.Settings
		if p.Name != nil {
			name = strings.TrimSpace(*p.Name)
			if name == "" {
				return apperror.Validation("validation failed", map[string]string{"name": "is required"})
			}
		}
		if p.Description != nil {
			desc = strings.TrimSpace(*p.Description)
		}
		if p.Settings != nil {
			settings = *p.Settings
		}
		if err := s.Households.Update(ctx, householdID, name, desc, settings); err != nil {
			return err
		}
		h, err = s.Households.GetByID(ctx, householdID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Delete removes the household and returns its final state so callers can
// notify the former members.
func (r *Registry) Delete(ctx context.Context, actorID, householdID int64) (*model.Household, error) {
	var h *model.Household
	err := r.run(ctx, func(s *store.Stores) error {
		var err error
		h, err = r.load(ctx, s, actorID, householdID, access.Write)
		if err != nil {
			return err
		}
		return s.Households.Delete(ctx, householdID)
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("household deleted", "household_id", householdID)
	return h, nil
}

func (r *Registry) Get(ctx context.Context, actorID, householdID int64) (*model.Household, error) {
	var h *model.Household
	err := r.run(ctx, func(s *store.Stores) error {
		var err error
		h, err = r.load(ctx, s, actorID, householdID, access.Read)
		return err
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (r *Registry) ListFor(ctx context.Context, userID int64) ([]model.Household, error) {
	var hs []model.Household
	err := r.run(ctx, func(s *store.Stores) error {
		var err error
		hs, err = s.Households.ListForUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return hs, nil
}
