// Package account handles registration, login, profiles and password resets.
package account

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/larder/internal/apperror"
	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

const minPasswordLen = 6

// Mailer delivers password reset links.
type Mailer interface {
	Configured() bool
	SendPasswordReset(ctx context.Context, toEmail, token string) error
}

type Service struct {
	db       *sql.DB
	timeout  time.Duration
	tokens   *auth.TokenManager
	resetTTL time.Duration
	isAdmin  func(email string) bool
	mailer   Mailer
	logger   *slog.Logger
	cost     int
	// exposeReset hands reset tokens back to the caller when no mail is
	// configured. Never set in production.
	exposeReset bool
}

type Options struct {
	Timeout  time.Duration
	ResetTTL time.Duration
	// IsAdminEmail decides whether a new account starts as admin.
	IsAdminEmail func(email string) bool
	Mailer       Mailer
	// ExposeResetToken returns reset tokens in the response body when Mailer
	// is not configured.
	ExposeResetToken bool
}

func NewService(db *sql.DB, tokens *auth.TokenManager, opts Options, logger *slog.Logger) *Service {
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = time.Hour
	}
	if opts.IsAdminEmail == nil {
		opts.IsAdminEmail = func(string) bool { return false }
	}
	return &Service{
		db:       db,
		timeout:  opts.Timeout,
		tokens:   tokens,
		resetTTL: opts.ResetTTL,
		isAdmin:  opts.IsAdminEmail,
		mailer:   opts.Mailer,
		logger:   logger.With("component", "account"),
		cost:     bcrypt.DefaultCost,

		exposeReset: opts.ExposeResetToken,
	}
}

type RegisterInput struct {
	Name     string `json:"name" validate:"notblank,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type ProfilePatch struct {
	Name        *string         `json:"name"`
	Avatar      *string         `json:"avatar"`
	Preferences json.RawMessage `json:"preferences"`
}

// Session is what a successful register or login returns.
type Session struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// ResetResult carries the reset token only when it could not be emailed.
type ResetResult struct {
	Emailed bool
	Token   string
}

func (s *Service) run(ctx context.Context, fn func(*store.Stores) error) error {
	return apperror.Wrap(store.Run(ctx, s.db, s.timeout, fn))
}

func (s *Service) hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", apperror.Internal(err)
	}
	return string(b), nil
}

func checkPassword(password string) error {
	if len(password) < minPasswordLen {
		return apperror.Validation("validation failed", map[string]string{"password": "must be at least 6 characters"})
	}
	return nil
}

// resetStamp fingerprints a password hash. A reset token only works while
// the hash it was issued against is still current.
func resetStamp(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return hex.EncodeToString(sum[:8])
}

// hydrate fills in the derived household ids and claims.
func hydrate(ctx context.Context, st *store.Stores, u *model.User) error {
	var err error
	if u.Households, err = st.Users.HouseholdIDs(ctx, u.ID); err != nil {
		return err
	}
	u.Claims, err = st.Rewards.ListClaims(ctx, u.ID)
	return err
}

func (s *Service) session(u *model.User) (*Session, error) {
	tok, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return &Session{Token: tok, User: u}, nil
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	name := strings.TrimSpace(in.Name)
	email := store.NormalizeEmail(in.Email)
	fields := map[string]string{}
	if name == "" {
		fields["name"] = "is required"
	}
	if email == "" || !strings.Contains(email, "@") {
		fields["email"] = "must be a valid email address"
	}
	if len(in.Password) < minPasswordLen {
		fields["password"] = "must be at least 6 characters"
	}
	if len(fields) > 0 {
		return nil, apperror.Validation("validation failed", fields)
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	role := model.UserRoleUser
	if s.isAdmin(email) {
		role = model.UserRoleAdmin
	}

	var u *model.User
	err = s.run(ctx, func(st *store.Stores) error {
		existing, err := st.Users.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperror.Conflict("an account with this email already exists")
		}
		if u, err = st.Users.Create(ctx, email, name, hash, role); err != nil {
			return err
		}
		return hydrate(ctx, st, u)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "user_id", u.ID, "role", role)
	return s.session(u)
}

// Login checks credentials. Unknown emails and wrong passwords fail the same
// way.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	var u *model.User
	err := s.run(ctx, func(st *store.Stores) error {
		var err error
		if u, err = st.Users.GetByEmail(ctx, email); err != nil {
			return err
		}
		if u == nil {
			return nil
		}
		return hydrate(ctx, st, u)
	})
	if err != nil {
		return nil, err
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		s.logger.Warn("login failed", "email", store.NormalizeEmail(email))
		return nil, apperror.Unauthorized("invalid email or password")
	}
	return s.session(u)
}

func (s *Service) Me(ctx context.Context, userID int64) (*model.User, error) {
	var u *model.User
	err := s.run(ctx, func(st *store.Stores) error {
		var err error
		if u, err = st.Users.GetByID(ctx, userID); err != nil {
			return err
		}
		if u == nil {
			return apperror.NotFound("user not found")
		}
		return hydrate(ctx, st, u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID int64, p ProfilePatch) (*model.User, error) {
	if len(p.Preferences) > 0 && string(p.Preferences) != "null" {
		var obj map[string]any
		if err := json.Unmarshal(p.Preferences, &obj); err != nil {
			return nil, apperror.Validation("validation failed", map[string]string{"preferences": "must be a JSON object"})
		}
	}

	var u *model.User
	err := s.run(ctx, func(st *store.Stores) error {
		cur, err := st.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if cur == nil {
			return apperror.NotFound("user not found")
		}
		name, avatar, prefs := cur.Name, cur.Avatar, cur.Preferences
		if p.Name != nil {
			name = strings.TrimSpace(*p.Name)
			if name == "" {
				return apperror.Validation("validation failed", map[string]string{"name": "is required"})
			}
		}
		if p.Avatar != nil {
			avatar = strings.TrimSpace(*p.Avatar)
		}
		if len(p.Preferences) > 0 {
			prefs = p.Preferences
			if string(prefs) == "null" {
				prefs = nil
			}
		}
		if u, err = st.Users.UpdateProfile(ctx, userID, name, avatar, prefs); err != nil {
			return err
		}
		return hydrate(ctx, st, u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ForgotPassword issues a reset token. When mail is configured the token is
// sent to the user. Otherwise it is handed back to the caller if the service
// allows that, and the request fails as Unavailable if not.
func (s *Service) ForgotPassword(ctx context.Context, email string) (*ResetResult, error) {
	var u *model.User
	err := s.run(ctx, func(st *store.Stores) error {
		var err error
		u, err = st.Users.GetByEmail(ctx, email)
		return err
	})
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperror.NotFound("no account with this email")
	}

	mailReady := s.mailer != nil && s.mailer.Configured()
	if !mailReady && !s.exposeReset {
		s.logger.Warn("password reset requested but mail is not configured", "user_id", u.ID)
		return nil, apperror.Unavailable(errors.New("password reset mail is not configured"))
	}
	tok, err := s.tokens.IssueReset(u.ID, resetStamp(u.PasswordHash), s.resetTTL)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if !mailReady {
		return &ResetResult{Token: tok}, nil
	}
	if err := s.mailer.SendPasswordReset(ctx, u.Email, tok); err != nil {
		s.logger.Error("reset email failed", "user_id", u.ID, "error", err)
		return nil, apperror.Unavailable(err)
	}
	return &ResetResult{Emailed: true}, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if err := checkPassword(password); err != nil {
		return err
	}
	claims, err := s.tokens.Validate(token, auth.PurposeReset)
	if err != nil {
		s.logger.Debug("reset token rejected", "error", err)
		return apperror.Unauthorized("invalid or expired reset token")
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	err = s.run(ctx, func(st *store.Stores) error {
		u, err := st.Users.GetByID(ctx, claims.UserID)
		if err != nil {
			return err
		}
		if u == nil {
			return apperror.NotFound("user not found")
		}
		if claims.Stamp != resetStamp(u.PasswordHash) {
			return apperror.Unauthorized("invalid or expired reset token")
		}
		return st.Users.UpdatePassword(ctx, u.ID, hash)
	})
	if err != nil {
		return err
	}
	s.logger.Info("password reset", "user_id", claims.UserID)
	return nil
}
