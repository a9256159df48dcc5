package models

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"civicfix/pkg/apperror"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
			return Category(fl.Field().String()).Valid()
		})
		v.RegisterValidation("status", func(fl validator.FieldLevel) bool {
			return Status(fl.Field().String()).Valid()
		})
		v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
			return Priority(fl.Field().String()).Valid()
		})
		validate = v
	})
	return validate
}

// Validate checks s against its struct tags and returns an apperror.Validation naming
// the first offending field.
func Validate(s interface{}) error {
	err := validatorInstance().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperror.Validation(err.Error())
	}
	return apperror.Validation(describe(fieldErrs[0]))
}

func describe(fe validator.FieldError) string {
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must contain at least %s items", field, fe.Param())
	case "max":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must contain at most %s items", field, fe.Param())
	case "email":
		return "Invalid email format"
	case "category", "status", "priority":
		return fmt.Sprintf("%s %q is not a valid %s", field, fe.Value(), fe.Tag())
	case "gte", "lte":
		return fmt.Sprintf("%s is out of range", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
