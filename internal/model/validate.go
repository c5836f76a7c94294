package model

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("requisition_number", func(fl validator.FieldLevel) bool {
		return ValidNumber(fl.Field().String())
	})
	return v
}

// Validator returns the shared validator with the model's custom rules
// registered. It is safe for concurrent use.
func Validator() *validator.Validate {
	return validate
}

// Validate checks field rules and the type-dependent line item shape.
func (r Requisition) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if r.Type == TypeFactory && len(r.DeliveryItems) > 0 {
		return fmt.Errorf("requisition %s: delivery items are only allowed on production requisitions", r.ID)
	}
	return nil
}

// Validate checks the user's field rules.
func (u User) Validate() error {
	return validate.Struct(u)
}
