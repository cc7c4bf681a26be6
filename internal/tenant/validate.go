package tenant

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/orgspace/orgspace/internal/credential"
	"github.com/orgspace/orgspace/internal/namespace"
)

// MinPasswordLength is the shortest accepted admin password.
const MinPasswordLength = 6

// MaxCollectionNameLength bounds tenant collection names.
const MaxCollectionNameLength = 64

var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// CreateRequest is the input of Create.
type CreateRequest struct {
	OrgName       string `json:"organization_name" binding:"required" validate:"required"`
	AdminEmail    string `json:"admin_email" binding:"required" validate:"required,email,max=254"`
	AdminPassword string `json:"admin_password" binding:"required" validate:"required,min=6,max=72"`
}

// LoginRequest is the input of Login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required" validate:"required"`
	Password string `json:"password" binding:"required" validate:"required"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// checkStruct runs struct tag validation and returns the first problem as ErrValidation.
func checkStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return validationf("%v", err)
	}
	return validationf("%s", describe(verrs[0]))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func validateOrgName(name string) error {
	if err := namespace.ValidateOrgName(name); err != nil {
		return validationf("%v", err)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return validationf("admin_password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > credential.MaxPasswordBytes {
		return validationf("admin_password must be at most %d bytes", credential.MaxPasswordBytes)
	}
	return nil
}

// ValidateCollectionName checks a tenant collection name. The allowed alphabet
// excludes '.', so reserved "system." collections cannot be addressed.
func ValidateCollectionName(name string) error {
	if name == "" || len(name) > MaxCollectionNameLength {
		return validationf("collection name must be 1 to %d characters", MaxCollectionNameLength)
	}
	if !collectionNamePattern.MatchString(name) {
		return validationf("collection name may only contain letters, digits, '_' and '-'")
	}
	return nil
}
