package validate

import (
	"regexp"

	"github.com/easytransac/easytransac-bridge/infra/config"
	"github.com/go-playground/validator/v10"
)

// Digit-only phone of 7 to 15 characters, the format the payment API accepts.
var phonePattern = regexp.MustCompile(`^[0-9]{7,15}$`)

// CustomValidate registers custom validation rules on the shared validator.
func CustomValidate() {
	v := config.App().Validator

	// intl_phone: international phone number after '+' to '00' normalization
	_ = v.RegisterValidation("intl_phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
}

// IsValidPhone reports whether the value is an acceptable digit-only phone.
func IsValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}
