package model

import (
	"math"
	"time"
)

type ShoppingList struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	UserID      int64     `json:"userId"`
	HouseholdID *int64    `json:"householdId,omitempty"`
	Items       []Item    `json:"items"`
	SharedWith  []int64   `json:"sharedWith"`
	TotalCents  int64     `json:"-"`
	TotalAmount float64   `json:"totalAmount"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SharedWithUser reports whether the list is shared with userID.
func (l *ShoppingList) SharedWithUser(userID int64) bool {
	for _, id := range l.SharedWith {
		if id == userID {
			return true
		}
	}
	return false
}

// Item is a line on a shopping list. Its ID is only unique within the list.
type Item struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Quantity   int       `json:"quantity"`
	Category   string    `json:"category"`
	PriceCents *int64    `json:"-"`
	Price      *float64  `json:"price"`
	Completed  bool      `json:"completed"`
	AddedBy    *int64    `json:"addedBy,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Cents converts a decimal amount to integer cents, rounding half away from zero.
func Cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Amount converts integer cents to a decimal amount.
func Amount(cents int64) float64 {
	return float64(cents) / 100
}

// Audience returns the users who can see the list: the owner, then everyone
// it is shared with.
func (l *ShoppingList) Audience() []int64 {
	ids := make([]int64, 0, len(l.SharedWith)+1)
	ids = append(ids, l.UserID)
	return append(ids, l.SharedWith...)
}
