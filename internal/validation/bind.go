package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-campus-orderflow/internal/apperr"
)

// BindAndValidate binds the JSON body into out and runs validation.
// Failures come back as an apperr validation error with one message per
// problem; the handler renders it.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		return apperr.Validation("Validation failed", "Invalid request body")
	}
	return Check(v, out)
}

// Check validates an already populated struct.
func Check(v *validatorv10.Validate, in interface{}) error {
	if err := v.Struct(in); err != nil {
		return apperr.Validation("Validation failed", Messages(err)...)
	}
	return nil
}

// Messages turns validator errors into human readable sentences.
func Messages(err error) []string {
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(ve))
	for _, fe := range ve {
		out = append(out, message(fe))
	}
	return out
}

func message(fe validatorv10.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "Please provide a valid email address"
	case "bd_phone":
		return "Please provide a valid Bangladeshi phone number"
	case "hhmm":
		return fmt.Sprintf("%s must be in HH:MM format", field)
	case "menu_category":
		return "Invalid category"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		if isNumber(fe) {
			return fmt.Sprintf("%s must be at least %s", field, fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s characters long", field, fe.Param())
	case "max":
		if isNumber(fe) {
			return fmt.Sprintf("%s must be at most %s", field, fe.Param())
		}
		return fmt.Sprintf("%s cannot exceed %s characters", field, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "student_domain":
		return fmt.Sprintf("Students must use the institutional email format (@%s)", fe.Param())
	case "student_id":
		return "Student ID is required and must be at least 4 characters"
	case "shop_name":
		return "Shop name is required for vendor accounts"
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func isNumber(fe validatorv10.FieldError) bool {
	switch fe.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
