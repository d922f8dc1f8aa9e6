package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/pauljones0/creator-deal-tracker/internal/models"
)

// Validator is a wrapper around the validator library with the deal enums registered.
type Validator struct {
	validate *validator.Validate
}

// New creates a new Validator instance.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("platform", func(fl validator.FieldLevel) bool {
		return models.Platform(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("status", func(fl validator.FieldLevel) bool {
		return models.Status(fl.Field().String()).Valid()
	})
	return &Validator{validate: v}
}

// ValidateStruct validates a struct based on its tags.
// Failures wrap models.ErrValidation.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrValidation, err)
	}
	return nil
}
