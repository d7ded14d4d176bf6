// Package validation wraps go-playground/validator for service inputs.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/bannerdesk/banner-service/internal/apperr"
	"github.com/bannerdesk/banner-service/internal/database"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator returns the shared validator with custom rules registered.
func Validator() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = validate.RegisterValidation("image_status", func(fl validator.FieldLevel) bool {
			return database.ImageStatus(fl.Field().String()).Valid()
		})
		_ = validate.RegisterValidation("project_status", func(fl validator.FieldLevel) bool {
			return database.ProjectStatus(fl.Field().String()).Valid()
		})
		_ = validate.RegisterValidation("temperature_range", func(fl validator.FieldLevel) bool {
			return database.TemperatureRange(fl.Field().String()).Valid()
		})
	})
	return validate
}

// Struct validates v and converts failures into a validation error whose
// details map each failing field to the rule it broke.
func Struct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Wrap(apperr.Validation("invalid input"), err)
	}

	details := make(map[string]any, len(fieldErrs))
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Tag()
		fields = append(fields, fe.Field())
	}
	return apperr.Validation("invalid %s", strings.Join(fields, ", ")).WithDetails(details)
}
