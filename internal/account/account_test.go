package account

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/larder/internal/apperror"
	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

type fakeMailer struct {
	configured bool
	to, token  string
}

func (m *fakeMailer) Configured() bool { return m.configured }

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, token string) error {
	m.to, m.token = to, token
	return nil
}

func setup(t *testing.T, mailer Mailer) (*Service, *auth.TokenManager, *store.Stores) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens := auth.NewTokenManager("test-secret", "larder", time.Hour)
	svc := NewService(db, tokens, Options{
		Timeout:      5 * time.Second,
		IsAdminEmail: func(email string) bool { return email == "boss@example.com" },
		Mailer:       mailer,

		ExposeResetToken: true,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.cost = bcrypt.MinCost
	return svc, tokens, store.New(db)
}

func register(t *testing.T, svc *Service, email string) *Session {
	t.Helper()
	sess, err := svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: email, Password: "secret1"})
	require.NoError(t, err)
	return sess
}

func TestRegister(t *testing.T) {
	svc, tokens, _ := setup(t, nil)
	sess := register(t, svc, "Alice@Example.com")

	assert.Equal(t, "alice@example.com", sess.User.Email)
	assert.Equal(t, model.UserRoleUser, sess.User.Role)
	assert.Zero(t, sess.User.Points)
	assert.Empty(t, sess.User.Households)

	claims, err := tokens.Validate(sess.Token, auth.PurposeAccess)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, claims.UserID)

	raw, err := json.Marshal(sess.User)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret1")
	assert.NotContains(t, string(raw), "password")
}

func TestRegisterAdminEmail(t *testing.T) {
	svc, _, _ := setup(t, nil)
	sess := register(t, svc, "boss@example.com")
	assert.Equal(t, model.UserRoleAdmin, sess.User.Role)
}

func TestRegisterErrors(t *testing.T) {
	svc, _, _ := setup(t, nil)
	register(t, svc, "alice@example.com")

	_, err := svc.Register(context.Background(), RegisterInput{Name: "Again", Email: "ALICE@example.com", Password: "secret1"})
	assert.True(t, apperror.Is(err, apperror.KindConflict))

	_, err = svc.Register(context.Background(), RegisterInput{Name: "", Email: "bad", Password: "123"})
	require.True(t, apperror.Is(err, apperror.KindValidation))
	fields := apperror.FieldsOf(err)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
}

func TestLogin(t *testing.T) {
	svc, _, _ := setup(t, nil)
	register(t, svc, "alice@example.com")
	ctx := context.Background()

	sess, err := svc.Login(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)

	_, wrongPass := svc.Login(ctx, "alice@example.com", "nope")
	_, unknown := svc.Login(ctx, "ghost@example.com", "secret1")
	assert.True(t, apperror.Is(wrongPass, apperror.KindUnauthorized))
	assert.True(t, apperror.Is(unknown, apperror.KindUnauthorized))
	assert.Equal(t, apperror.PublicMessage(wrongPass), apperror.PublicMessage(unknown))
}

func TestMeIncludesHouseholds(t *testing.T) {
	svc, _, st := setup(t, nil)
	sess := register(t, svc, "alice@example.com")
	ctx := context.Background()
	h, err := st.Households.Create(ctx, sess.User.ID, "Home", "")
	require.NoError(t, err)

	u, err := svc.Me(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{h.ID}, u.Households)

	_, err = svc.Me(ctx, sess.User.ID+10)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestUpdateProfile(t *testing.T) {
	svc, _, _ := setup(t, nil)
	sess := register(t, svc, "alice@example.com")
	ctx := context.Background()

	name := "Alice B."
	u, err := svc.UpdateProfile(ctx, sess.User.ID, ProfilePatch{Name: &name, Preferences: json.RawMessage(`{"theme":"dark"}`)})
	require.NoError(t, err)
	assert.Equal(t, "Alice B.", u.Name)
	assert.JSONEq(t, `{"theme":"dark"}`, string(u.Preferences))

	avatar := "https://example.com/a.png"
	u, err = svc.UpdateProfile(ctx, sess.User.ID, ProfilePatch{Avatar: &avatar})
	require.NoError(t, err)
	assert.Equal(t, "Alice B.", u.Name)
	assert.JSONEq(t, `{"theme":"dark"}`, string(u.Preferences))

	_, err = svc.UpdateProfile(ctx, sess.User.ID, ProfilePatch{Preferences: json.RawMessage(`[1,2]`)})
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestForgotAndResetPasswordWithoutMail(t *testing.T) {
	svc, _, _ := setup(t, nil)
	register(t, svc, "alice@example.com")
	ctx := context.Background()

	res, err := svc.ForgotPassword(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, res.Emailed)
	require.NotEmpty(t, res.Token)

	require.NoError(t, svc.ResetPassword(ctx, res.Token, "newpass"))

	_, err = svc.Login(ctx, "alice@example.com", "secret1")
	assert.True(t, apperror.Is(err, apperror.KindUnauthorized))
	_, err = svc.Login(ctx, "alice@example.com", "newpass")
	assert.NoError(t, err)

	_, err = svc.ForgotPassword(ctx, "ghost@example.com")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestForgotPasswordEmailsToken(t *testing.T) {
	mailer := &fakeMailer{configured: true}
	svc, tokens, _ := setup(t, mailer)
	register(t, svc, "alice@example.com")

	res, err := svc.ForgotPassword(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.True(t, res.Emailed)
	assert.Empty(t, res.Token)
	assert.Equal(t, "alice@example.com", mailer.to)

	_, err = tokens.Validate(mailer.token, auth.PurposeReset)
	assert.NoError(t, err)
}

func TestResetPasswordRejectsBadTokens(t *testing.T) {
	svc, _, _ := setup(t, nil)
	sess := register(t, svc, "alice@example.com")
	ctx := context.Background()

	err := svc.ResetPassword(ctx, sess.Token, "newpass")
	assert.True(t, apperror.Is(err, apperror.KindUnauthorized), "an access token is not a reset token")

	err = svc.ResetPassword(ctx, "garbage", "newpass")
	assert.True(t, apperror.Is(err, apperror.KindUnauthorized))

	res, _ := svc.ForgotPassword(ctx, "alice@example.com")
	err = svc.ResetPassword(ctx, res.Token, "123")
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestResetTokenIsSingleUse(t *testing.T) {
	svc, _, _ := setup(t, nil)
	register(t, svc, "alice@example.com")
	ctx := context.Background()

	res, err := svc.ForgotPassword(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.ResetPassword(ctx, res.Token, "newpass"))

	err = svc.ResetPassword(ctx, res.Token, "hijacked")
	assert.True(t, apperror.Is(err, apperror.KindUnauthorized))

	_, err = svc.Login(ctx, "alice@example.com", "newpass")
	assert.NoError(t, err)
}

func TestForgotPasswordWithholdsTokenWithoutMail(t *testing.T) {
	svc, _, _ := setup(t, &fakeMailer{configured: false})
	svc.exposeReset = false
	register(t, svc, "alice@example.com")

	res, err := svc.ForgotPassword(context.Background(), "alice@example.com")
	assert.Nil(t, res)
	assert.True(t, apperror.Is(err, apperror.KindUnavailable))
}
