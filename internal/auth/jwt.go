package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	PurposeAccess = "access"
	PurposeReset  = "reset"
)

var ErrWrongPurpose = errors.New("token used for the wrong purpose")

type Claims struct {
	UserID  int64  `json:"uid"`
	Role    string `json:"role,omitempty"`
	Purpose string `json:"purpose"`
	// Stamp ties a reset token to the password it was issued against.
	Stamp string `json:"stamp,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and checks HS256 tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	if issuer == "" {
		issuer = "larder"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs an access token for the user.
func (tm *TokenManager) Issue(userID int64, role string) (string, error) {
	return tm.sign(userID, role, PurposeAccess, "", tm.ttl)
}

// IssueReset signs a short-lived password reset token carrying stamp.
func (tm *TokenManager) IssueReset(userID int64, stamp string, ttl time.Duration) (string, error) {
	return tm.sign(userID, "", PurposeReset, stamp, ttl)
}

func (tm *TokenManager) sign(userID int64, role, purpose, stamp string, ttl time.Duration) (string, error) {
	if userID == 0 {
		return "", fmt.Errorf("user id required")
	}
	now := tm.now()
	claims := Claims{
		UserID:  userID,
		Role:    role,
		Purpose: purpose,
		Stamp:   stamp,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    tm.issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
}

// Validate parses the token and checks its signature, expiry, issuer and
// purpose.
func (tm *TokenManager) Validate(tokenString, purpose string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithIssuer(tm.issuer), jwt.WithTimeFunc(tm.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Purpose != purpose {
		return nil, ErrWrongPurpose
	}
	return claims, nil
}

// ExtractToken pulls the token out of a "Bearer <token>" header.
func ExtractToken(authHeader string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("invalid authorization header")
	}
	return strings.TrimSpace(token), nil
}
