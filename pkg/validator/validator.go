package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator validates structs via `validate` tags.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Skill codes are short uppercase identifiers like SURG or LASER.
	v.RegisterValidation("skillcode", func(fl validator.FieldLevel) bool {
		code := fl.Field().String()
		if code == "" || len(code) > 32 {
			return false
		}
		return code == strings.ToUpper(code)
	})

	return &Validator{v: v}
}

func (v *Validator) Validate(obj interface{}) error {
	if err := v.v.Struct(obj); err != nil {
		var errs validator.ValidationErrors
		if ok := asValidationErrors(err, &errs); ok && len(errs) > 0 {
			first := errs[0]
			return fmt.Errorf("field %s failed %q validation", first.Field(), first.Tag())
		}
		return err
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	if ve, ok := err.(validator.ValidationErrors); ok {
		*target = ve
		return true
	}
	return false
}
