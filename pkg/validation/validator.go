package validation

import (
	"github.com/go-playground/validator/v10"
)

// Validate is the shared validator instance used to bind-check incoming
// request DTOs before they reach domain-level validation.
var Validate *validator.Validate

func init() {
	Validate = validator.New()

	_ = Validate.RegisterValidation("latitude", validateLatitude)
	_ = Validate.RegisterValidation("longitude", validateLongitude)
}

// ValidateStruct runs struct-tag validation and returns the underlying
// validator.ValidationErrors unchanged — it already implements error with a
// readable per-field message.
func ValidateStruct(s interface{}) error {
	return Validate.Struct(s)
}

// validateLatitude checks if latitude is within valid range (-90 to 90)
func validateLatitude(fl validator.FieldLevel) bool {
	latitude := fl.Field().Float()
	return latitude >= -90.0 && latitude <= 90.0
}

// validateLongitude checks if longitude is within valid range (-180 to 180)
func validateLongitude(fl validator.FieldLevel) bool {
	longitude := fl.Field().Float()
	return longitude >= -180.0 && longitude <= 180.0
}
