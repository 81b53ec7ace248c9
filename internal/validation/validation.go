// Package validation wraps go-playground/validator with the project's custom
// tags and turns failures into field-keyed messages.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/larder/internal/apperror"
	"github.com/dukerupert/larder/internal/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names so messages line up with the request body.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	RegisterValidators(v)
	return v
}

// RegisterValidators installs the custom tags on v.
func RegisterValidators(v *validator.Validate) {
	_ = v.RegisterValidation("notblank", NotBlank)
	_ = v.RegisterValidation("household_role", HouseholdRole)
	_ = v.RegisterValidation("reward_type", RewardType)
}

// NotBlank fails strings that are empty after trimming whitespace.
func NotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// HouseholdRole accepts the roles that may be assigned to a member. Owner is
// never assignable.
func HouseholdRole(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "", model.RoleAdmin, model.RoleMember:
		return true
	}
	return false
}

func RewardType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case model.RewardTypeDiscount, model.RewardTypeCashback, model.RewardTypeProduct, model.RewardTypeService:
		return true
	}
	return false
}

// Struct validates v and returns an apperror Validation error listing every
// failing field, or nil.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Internal(err)
	}
	return apperror.Validation("validation failed", Format(verrs))
}

// Format converts validator errors into a map of field name to message.
func Format(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, e := range verrs {
		out[e.Field()] = message(e)
	}
	return out
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "notblank":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", e.Param())
		}
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", e.Param())
		}
		return fmt.Sprintf("must be at most %s", e.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be %s or more", e.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(e.Param(), " ", ", ")
	case "household_role":
		return "must be admin or member"
	case "reward_type":
		return "must be one of: discount, cashback, product, service"
	default:
		return "is invalid"
	}
}
