// Package access decides who may read or change lists and households.
// Every function works on a snapshot the caller already loaded and has no
// side effects.
package access

import (
	"github.com/dukerupert/larder/internal/apperror"
	"github.com/dukerupert/larder/internal/model"
)

// Need is the capability an operation requires.
type Need int

const (
	Read Need = iota
	Write
)

func CanReadList(actorID int64, l *model.ShoppingList) bool {
	if l == nil {
		return false
	}
	return l.UserID == actorID || l.SharedWithUser(actorID)
}

func CanWriteList(actorID int64, l *model.ShoppingList) bool {
	return l != nil && l.UserID == actorID
}

func CanReadHousehold(actorID int64, h *model.Household) bool {
	if h == nil {
		return false
	}
	if h.OwnerID == actorID {
		return true
	}
	_, ok := h.Member(actorID)
	return ok
}

func CanWriteHousehold(actorID int64, h *model.Household) bool {
	return h != nil && h.OwnerID == actorID
}

// CheckList returns NotFound for a missing list, Forbidden when the actor
// lacks the capability, and nil otherwise.
func CheckList(actorID int64, l *model.ShoppingList, need Need) error {
	if l == nil {
		return apperror.NotFound("list not found")
	}
	switch need {
	case Write:
		if !CanWriteList(actorID, l) {
			return apperror.Forbidden("only the list owner can do that")
		}
	default:
		if !CanReadList(actorID, l) {
			return apperror.Forbidden("you do not have access to this list")
		}
	}
	return nil
}

// CheckHousehold is CheckList for households.
func CheckHousehold(actorID int64, h *model.Household, need Need) error {
	if h == nil {
		return apperror.NotFound("household not found")
	}
	switch need {
	case Write:
		if !CanWriteHousehold(actorID, h) {
			return apperror.Forbidden("only the household owner can do that")
		}
	default:
		if !CanReadHousehold(actorID, h) {
			return apperror.Forbidden("you are not a member of this household")
		}
	}
	return nil
}
