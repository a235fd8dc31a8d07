// Package validate holds the shared request validator with clinic-specific rules.
package validate

import (
	"github.com/go-playground/validator/v10"

	"github.com/dvillacreses/citasalud/internal/identity"
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	_ = val.RegisterValidation("cedula", func(fl validator.FieldLevel) bool {
		return identity.ValidCedula(fl.Field().String())
	})
	return val
}

// Struct validates a request payload against its struct tags.
func Struct(s any) error {
	return v.Struct(s)
}
