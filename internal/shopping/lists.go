// Package shopping owns shopping lists and the items on them. Every item
// change recomputes the list total in the same transaction.
package shopping

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/larder/internal/access"
	"github.com/dukerupert/larder/internal/apperror"
	"github.com/dukerupert/larder/internal/grocery"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

const (
	maxNameLen = 200

	// A single line is at most 1e8 cents × 1e4 = 1e12 cents, so a list
	// total stays inside int64 for millions of items.
	maxPrice    = 1_000_000
	maxQuantity = 10_000
)

// Notifier delivers the "list shared" message.
type Notifier interface {
	Configured() bool
	SendListShared(ctx context.Context, toEmail, listName, sharedBy string) error
}

type Lists struct {
	db       *sql.DB
	timeout  time.Duration
	notifier Notifier
	logger   *slog.Logger
}

// NewLists builds the list service. notifier may be nil.
func NewLists(db *sql.DB, timeout time.Duration, notifier Notifier, logger *slog.Logger) *Lists {
	return &Lists{
		db:       db,
		timeout:  timeout,
		notifier: notifier,
		logger:   logger.With("component", "shopping"),
	}
}

type ListDraft struct {
	Name        string `json:"name" validate:"notblank,max=200"`
	Category    string `json:"category" validate:"max=50"`
	HouseholdID *int64 `json:"householdId"`
}

type ListPatch struct {
	Name     *string `json:"name"`
	Category *string `json:"category"`
}

type ItemDraft struct {
	Name     string   `json:"name" validate:"notblank,max=200"`
	Quantity *int     `json:"quantity" validate:"omitempty,gte=1,lte=10000"`
	Category string   `json:"category" validate:"max=50"`
	Price    *float64 `json:"price" validate:"omitempty,gte=0,lte=1000000"`
}

// ItemPatch is the allow-list of item fields a client may change.
type ItemPatch struct {
	Name      *string       `json:"name"`
	Quantity  *int          `json:"quantity"`
	Category  *string       `json:"category"`
	Price     NullablePrice `json:"price"`
	Completed *bool         `json:"completed"`
}

// NullablePrice tells an absent price apart from an explicit null, which
// clears it.
type NullablePrice struct {
	Set   bool
	Value *float64
}

func (p *NullablePrice) UnmarshalJSON(b []byte) error {
	p.Set = true
	if string(b) == "null" {
		p.Value = nil
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	p.Value = &v
	return nil
}

func invalid(field, msg string) error {
	return apperror.Validation("validation failed", map[string]string{field: msg})
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("name", "is required")
	}
	if len(name) > maxNameLen {
		return "", invalid("name", "must be at most 200 characters")
	}
	return name, nil
}

func checkQuantity(qty int) error {
	if qty < 1 {
		return invalid("quantity", "must be 1 or more")
	}
	if qty > maxQuantity {
		return invalid("quantity", "must be at most 10000")
	}
	return nil
}

func priceCents(price *float64) (*int64, error) {
	if price == nil {
		return nil, nil
	}
	if math.IsNaN(*price) || *price < 0 {
		return nil, invalid("price", "must be 0 or more")
	}
	if *price > maxPrice {
		return nil, invalid("price", "must be at most 1000000")
	}
	c := model.Cents(*price)
	return &c, nil
}

func (s *Lists) run(ctx context.Context, fn func(*store.Stores) error) error {
	return apperror.Wrap(store.Run(ctx, s.db, s.timeout, fn))
}

// load fetches the list and checks the actor may use it.
func (s *Lists) load(ctx context.Context, st *store.Stores, actorID, listID int64, need access.Need) (*model.ShoppingList, error) {
	l, err := st.Lists.GetByID(ctx, listID)
	if err != nil {
		return nil, err
	}
	err = access.CheckList(actorID, l, need)
	if apperror.Is(err, apperror.KindForbidden) {
		s.logger.Warn("list access denied", "actor_id", actorID, "list_id", listID)
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Lists) Create(ctx context.Context, ownerID int64, d ListDraft) (*model.ShoppingList, error) {
	name, err := cleanName(d.Name)
	if err != nil {
		return nil, err
	}

	var l *model.ShoppingList
	err = s.run(ctx, func(st *store.Stores) error {
		if d.HouseholdID != nil {
			h, err := st.Households.GetByID(ctx, *d.HouseholdID)
			if err != nil {
				return err
			}
			if err := access.CheckHousehold(ownerID, h, access.Read); err != nil {
				return err
			}
		}
		var err error
		l, err = st.Lists.Create(ctx, ownerID, name, strings.TrimSpace(d.Category), d.HouseholdID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("list created", "list_id", l.ID, "owner_id", ownerID)
	return l, nil
}

// AddItem puts a new item at the front of the list.
func (s *Lists) AddItem(ctx context.Context, actorID, listID int64, d ItemDraft) (*model.ShoppingList, error) {
	name, err := cleanName(d.Name)
	if err != nil {
		return nil, err
	}
	qty := 1
	if d.Quantity != nil {
		qty = *d.Quantity
	}
	if err := checkQuantity(qty); err != nil {
		return nil, err
	}
	cents, err := priceCents(d.Price)
	if err != nil {
		return nil, err
	}
	category := strings.TrimSpace(d.Category)
	if category == "" {
		category = grocery.Categorize(name)
	}

	var l *model.ShoppingList
	err = s.run(ctx, func(st *store.Stores) error {
		if _, err := s.load(ctx, st, actorID, listID, access.Read); err != nil {
			return err
		}
		addedBy := actorID
		it := &model.Item{
			ID:         uuid.NewString(),
			Name:       name,
			Quantity:   qty,
			Category:   category,
			PriceCents: cents,
			AddedBy:    &addedBy,
		}
		if err := st.Lists.InsertItem(ctx, listID, it); err != nil {
			return err
		}
		if err := st.Lists.RecomputeTotal(ctx, listID); err != nil {
			return err
		}
		var err error
		l, err = st.Lists.GetByID(ctx, listID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Lists) UpdateItem(ctx context.Context, actorID, listID int64, itemID string, p ItemPatch) (*model.ShoppingList, error) {
	var (
		name  string
		cents *int64
		err   error
	)
	if p.Name != nil {
		if name, err = cleanName(*p.Name); err != nil {
			return nil, err
		}
	}
	if p.Quantity != nil {
		if err := checkQuantity(*p.Quantity); err != nil {
			return nil, err
		}
	}
	if p.Price.Set {
		if cents, err = priceCents(p.Price.Value); err != nil {
			return nil, err
		}
	}

	var l *model.ShoppingList
	err = s.run(ctx, func(st *store.Stores) error {
		if _, err := s.load(ctx, st, actorID, listID, access.Read); err != nil {
			return err
		}
		it, err := st.Lists.GetItem(ctx, listID, itemID)
		if err != nil {
			return err
		}
		if it == nil {
			return apperror.NotFound("item not found")
		}
		if p.Name != nil {
			it.Name = name
		}
		if p.Quantity != nil {
			it.Quantity = *p.Quantity
		}
		if p.Category != nil {
			it.Category = strings.TrimSpace(*p.Category)
		}
		if p.Price.Set {
			it.PriceCents = cents
		}
		if p.Completed != nil {
			it.Completed = *p.Completed
		}
		if err := st.Lists.UpdateItem(ctx, listID, it); err != nil {
			return err
		}
		if err := st.Lists.RecomputeTotal(ctx, listID); err != nil {
			return err
		}
		l, err = st.Lists.GetByID(ctx, listID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Lists) RemoveItem(ctx context.Context, actorID, listID int64, itemID string) (*model.ShoppingList, error) {
	var l *model.ShoppingList
	err := s.run(ctx, func(st *store.Stores) error {
		if _, err := s.load(ctx, st, actorID, listID, access.Read); err != nil {
			return err
		}
		ok, err := st.Lists.DeleteItem(ctx, listID, itemID)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.NotFound("item not found")
		}
		if err := st.Lists.RecomputeTotal(ctx, listID); err != nil {
			return err
		}
		l, err = st.Lists.GetByID(ctx, listID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// ClearCompleted drops every completed item from the list.
func (s *Lists) ClearCompleted(ctx context.Context, actorID, listID int64) (*model.ShoppingList, error) {
	var l *model.ShoppingList
	err := s.run(ctx, func(st *store.Stores) error {
		if _, err := s.load(ctx, st, actorID, listID, access.Read); err != nil {
			return err
		}
		n, err := st.Lists.DeleteCompletedItems(ctx, listID)
		if err != nil {
			return err
		}
		if n > 0 {
			if err := st.Lists.RecomputeTotal(ctx, listID); err != nil {
				return err
			}
		}
		l, err = st.Lists.GetByID(ctx, listID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Lists) Update(ctx context.Context, actorID, listID int64, p ListPatch) (*model.ShoppingList, error) {
	var (
		name string
		err  error
	)
	if p.Name != nil {
		if name, err = cleanName(*p.Name); err != nil {
			return nil, err
		}
	}

	var l *model.ShoppingList
	err = s.run(ctx, func(st *store.Stores) error {
		cur, err := s.load(ctx, st, actorID, listID, access.Write)
		if err != nil {
			return err
		}
		if p.Name == nil {
			name = cur.Name
		}
		category := cur.Category
		if p.Category != nil {
			category = strings.TrimSpace(*p.Category)
		}
		if err := st.Lists.Update(ctx, listID, name, category); err != nil {
			return err
		}
		l, err = st.Lists.GetByID(ctx, listID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Delete removes the list and returns its final state so callers can notify
// everyone who could see it.
func (s *Lists) Delete(ctx context.Context, actorID, listID int64) (*model.ShoppingList, error) {
	var l *model.ShoppingList
	err := s.run(ctx, func(st *store.Stores) error {
		var err error
		if l, err = s.load(ctx, st, actorID, listID, access.Write); err != nil {
			return err
		}
		return st.Lists.Delete(ctx, listID)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("list deleted", "list_id", listID)
	return l, nil
}

// Share gives the user registered under email read and item-edit access.
func (s *Lists) Share(ctx context.Context, actorID, listID int64, email string) (*model.ShoppingList, error) {
	var (
		l       *model.ShoppingList
		target  *model.User
		actName string
	)
	err := s.run(ctx, func(st *store.Stores) error {
		cur, err := s.load(ctx, st, actorID, listID, access.Write)
		if err != nil {
			return err
		}
		target, err = st.Users.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if target == nil {
			return apperror.NotFound("user not found")
		}
		if target.ID == cur.UserID {
			return apperror.Conflict("the owner already has access to this list")
		}
		if cur.SharedWithUser(target.ID) {
			return apperror.Conflict("list is already shared with this user")
		}
		if err := st.Lists.AddShare(ctx, listID, target.ID); err != nil {
			return err
		}
		if actor, err := st.Users.GetByID(ctx, actorID); err == nil && actor != nil {
			actName = actor.Name
		}
		l, err = st.Lists.GetByID(ctx, listID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("list shared", "list_id", listID, "user_id", target.ID)
	if s.notifier != nil && s.notifier.Configured() {
		if err := s.notifier.SendListShared(ctx, target.Email, l.Name, actName); err != nil {
			s.logger.Warn("share email failed", "to", target.Email, "error", err)
		}
	}
	return l, nil
}

func (s *Lists) Unshare(ctx context.Context, actorID, listID, userID int64) (*model.ShoppingList, error) {
	var l *model.ShoppingList
	err := s.run(ctx, func(st *store.Stores) error {
		if _, err := s.load(ctx, st, actorID, listID, access.Write); err != nil {
			return err
		}
		ok, err := st.Lists.RemoveShare(ctx, listID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.NotFound("list is not shared with this user")
		}
		l, err = st.Lists.GetByID(ctx, listID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Lists) Get(ctx context.Context, actorID, listID int64) (*model.ShoppingList, error) {
	var l *model.ShoppingList
	err := s.run(ctx, func(st *store.Stores) error {
		var err error
		l, err = s.load(ctx, st, actorID, listID, access.Read)
		return err
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// ListFor returns the lists the user owns or that are shared with them,
// newest first.
func (s *Lists) ListFor(ctx context.Context, userID int64) ([]model.ShoppingList, error) {
	var ls []model.ShoppingList
	err := s.run(ctx, func(st *store.Stores) error {
		var err error
		ls, err = st.Lists.ListForUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ls, nil
}
