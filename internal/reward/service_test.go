package reward

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/larder/internal/apperror"
	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

type fixture struct {
	svc   *Service
	st    *store.Stores
	admin *model.User
	alice *model.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	ctx := context.Background()
	admin, err := st.Users.Create(ctx, "admin@example.com", "Admin", "hash", model.UserRoleAdmin)
	require.NoError(t, err)
	alice, err := st.Users.Create(ctx, "alice@example.com", "Alice", "hash", model.UserRoleUser)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{svc: NewService(db, 5*time.Second, logger), st: st, admin: admin, alice: alice}
}

func (f *fixture) reward(t *testing.T, in Input) *model.Reward {
	t.Helper()
	r, err := f.svc.Create(context.Background(), f.admin.ID, in)
	require.NoError(t, err)
	return r
}

func (f *fixture) fund(t *testing.T, points int) {
	t.Helper()
	_, err := f.svc.Credit(context.Background(), f.admin.ID, f.alice.ID, points, "welcome bonus")
	require.NoError(t, err)
}

func boolp(b bool) *bool { return &b }

func TestClaim(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r := f.reward(t, Input{Name: "Coffee", Points: 50, Type: model.RewardTypeProduct})
	f.fund(t, 120)

	u, claim, err := f.svc.Claim(ctx, f.alice.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, u.Points)
	assert.Equal(t, 50, claim.PointsSpent)
	require.Len(t, u.Claims, 1)
	assert.Equal(t, "Coffee", u.Claims[0].RewardName)

	txns, err := f.svc.History(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, -50, txns[0].Delta)
	assert.Equal(t, model.PointsRedeemed, txns[0].Kind)
	assert.Equal(t, 120, txns[1].Delta)
}

func TestClaimInsufficientBalance(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r := f.reward(t, Input{Name: "TV", Points: 1000, Type: model.RewardTypeProduct})
	f.fund(t, 10)

	_, _, err := f.svc.Claim(ctx, f.alice.ID, r.ID)
	assert.True(t, apperror.Is(err, apperror.KindInsufficientBalance))

	u, err := f.st.Users.GetByID(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, u.Points)
	claims, _ := f.st.Rewards.ListClaims(ctx, f.alice.ID)
	assert.Empty(t, claims)
}

func TestClaimUnavailableReward(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fund(t, 500)
	past := time.Now().Add(-time.Hour)

	inactive := f.reward(t, Input{Name: "Old", Points: 1, Type: model.RewardTypeDiscount, IsActive: boolp(false)})
	expired := f.reward(t, Input{Name: "Gone", Points: 1, Type: model.RewardTypeDiscount, ExpiryDate: &past})

	_, _, err := f.svc.Claim(ctx, f.alice.ID, inactive.ID)
	assert.True(t, apperror.Is(err, apperror.KindValidation))
	_, _, err = f.svc.Claim(ctx, f.alice.ID, expired.ID)
	assert.True(t, apperror.Is(err, apperror.KindValidation))
	_, _, err = f.svc.Claim(ctx, f.alice.ID, expired.ID+100)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	u, _ := f.st.Users.GetByID(ctx, f.alice.ID)
	assert.Equal(t, 500, u.Points)
}

func TestConcurrentClaimsOnlyOneSucceeds(t *testing.T) {
	f := setup(t)
	r := f.reward(t, Input{Name: "Coffee", Points: 100, Type: model.RewardTypeProduct})
	f.fund(t, 100)

	const n = 2
	var wg sync.WaitGroup
	errs := make([]error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, _, errs[i] = f.svc.Claim(context.Background(), f.alice.ID, r.ID)
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperror.Is(err, apperror.KindInsufficientBalance):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)

	u, err := f.st.Users.GetByID(context.Background(), f.alice.ID)
	require.NoError(t, err)
	assert.Zero(t, u.Points)
}

func TestCatalogueRequiresAdmin(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	in := Input{Name: "Coffee", Points: 10, Type: model.RewardTypeProduct}

	_, err := f.svc.Create(ctx, f.alice.ID, in)
	assert.True(t, apperror.Is(err, apperror.KindForbidden))

	r := f.reward(t, in)
	_, err = f.svc.Update(ctx, f.alice.ID, r.ID, in)
	assert.True(t, apperror.Is(err, apperror.KindForbidden))
	assert.True(t, apperror.Is(f.svc.Delete(ctx, f.alice.ID, r.ID), apperror.KindForbidden))
	_, err = f.svc.List(ctx, f.alice.ID, true)
	assert.True(t, apperror.Is(err, apperror.KindForbidden))
	_, err = f.svc.Credit(ctx, f.alice.ID, f.alice.ID, 100, "")
	assert.True(t, apperror.Is(err, apperror.KindForbidden))
}

func TestCreateValidation(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Create(context.Background(), f.admin.ID, Input{Name: " ", Points: -1, Type: "voucher"})
	require.True(t, apperror.Is(err, apperror.KindValidation))
	fields := apperror.FieldsOf(err)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "points")
	assert.Contains(t, fields, "type")
}

func TestListHidesUnclaimable(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	f.reward(t, Input{Name: "Live", Points: 5, Type: model.RewardTypeService})
	f.reward(t, Input{Name: "Off", Points: 5, Type: model.RewardTypeService, IsActive: boolp(false)})
	f.reward(t, Input{Name: "Expired", Points: 5, Type: model.RewardTypeService, ExpiryDate: &past})

	visible, err := f.svc.List(ctx, f.alice.ID, false)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "Live", visible[0].Name)

	all, err := f.svc.List(ctx, f.admin.ID, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUpdateKeepsActiveFlag(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r := f.reward(t, Input{Name: "Coffee", Points: 10, Type: model.RewardTypeProduct, IsActive: boolp(false)})

	up, err := f.svc.Update(ctx, f.admin.ID, r.ID, Input{Name: "Espresso", Points: 12, Type: model.RewardTypeProduct})
	require.NoError(t, err)
	assert.Equal(t, "Espresso", up.Name)
	assert.False(t, up.IsActive)

	_, err = f.svc.Update(ctx, f.admin.ID, r.ID+9, Input{Name: "x", Type: model.RewardTypeProduct})
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	require.NoError(t, f.svc.Delete(ctx, f.admin.ID, r.ID))
	_, err = f.svc.Get(ctx, r.ID)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestCreditValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.Credit(ctx, f.admin.ID, f.alice.ID, 0, "")
	assert.True(t, apperror.Is(err, apperror.KindValidation))
	_, err = f.svc.Credit(ctx, f.admin.ID, f.alice.ID+99, 5, "")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}
