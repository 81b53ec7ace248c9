package model

import (
	"encoding/json"
	"time"
)

const (
	UserRoleUser  = "user"
	UserRoleAdmin = "admin"
)

type User struct {
	ID           int64           `json:"id"`
	Email        string          `json:"email"`
	Name         string          `json:"name"`
	PasswordHash string          `json:"-"`
	Role         string          `json:"role"`
	Points       int             `json:"points"`
	Avatar       string          `json:"avatar,omitempty"`
	Preferences  json.RawMessage `json:"preferences,omitempty"`
	Households   []int64         `json:"households"`
	Claims       []RewardClaim   `json:"claimedRewards,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
