package api

import (
	"github.com/go-playground/validator/v10"
)

// RequestValidator adapts go-playground/validator to echo.Validator.
type RequestValidator struct {
	Validator *validator.Validate
}

func (v *RequestValidator) Validate(i interface{}) error {
	return v.Validator.Struct(i)
}
