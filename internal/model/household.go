package model

import "time"

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// ValidRole reports whether role is one of the household member roles.
func ValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

type HouseholdSettings struct {
	Notifications     bool `json:"notifications"`
	ShoppingReminders bool `json:"shoppingReminders"`
}

type Household struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	OwnerID     int64             `json:"ownerId"`
	Settings    HouseholdSettings `json:"settings"`
	Members     []HouseholdMember `json:"members"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

type HouseholdMember struct {
	UserID   int64     `json:"userId"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Member returns the membership entry for userID, if any.
func (h *Household) Member(userID int64) (HouseholdMember, bool) {
	for _, m := range h.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return HouseholdMember{}, false
}

// MemberIDs returns the user ids of every member, owner included.
func (h *Household) MemberIDs() []int64 {
	ids := make([]int64, len(h.Members))
	for i, m := range h.Members {
		ids[i] = m.UserID
	}
	return ids
}
