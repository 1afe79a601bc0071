package utils

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()

	v.RegisterValidation("album_code", validateAlbumCode)
	v.RegisterValidation("station_type", validateStationType)

	return &Validator{
		validate: v,
	}
}

func (v *Validator) Struct(s interface{}) error {
	return v.validate.Struct(s)
}

func validateAlbumCode(fl validator.FieldLevel) bool {
	return IsAlbumCode(fl.Field().String())
}

// Stations that may add photos to an album
func validateStationType(fl validator.FieldLevel) bool {
	supported := map[string]bool{
		"photobooth": true,
		"mirror":     true,
		"gif":        true,
		"roaming":    true,
		"upload":     true,
	}
	return supported[strings.ToLower(fl.Field().String())]
}
