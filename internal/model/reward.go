package model

import "time"

const (
	RewardTypeDiscount = "discount"
	RewardTypeCashback = "cashback"
	RewardTypeProduct  = "product"
	RewardTypeService  = "service"
)

type Reward struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Points      int        `json:"points"`
	Type        string     `json:"type"`
	ExpiryDate  *time.Time `json:"expiryDate,omitempty"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Claimable reports whether the reward is active and unexpired at t.
func (r *Reward) Claimable(t time.Time) bool {
	if !r.IsActive {
		return false
	}
	return r.ExpiryDate == nil || t.Before(*r.ExpiryDate)
}

type RewardClaim struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"userId"`
	RewardID    *int64    `json:"reward"`
	RewardName  string    `json:"rewardName"`
	PointsSpent int       `json:"pointsSpent"`
	ClaimedAt   time.Time `json:"claimedAt"`
}

const (
	PointsEarned   = "earned"
	PointsRedeemed = "redeemed"
)

type PointTransaction struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Delta     int       `json:"delta"`
	Kind      string    `json:"kind"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}
