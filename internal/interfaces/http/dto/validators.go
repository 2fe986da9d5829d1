package dto

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/emissor/backend/internal/domain/shared/valueobject"
)

// RegisterValidators installs the custom binding rules used by the API
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("taxid", validTaxID)
}

// validTaxID accepts a CNPJ or CPF with valid check digits
func validTaxID(fl validator.FieldLevel) bool {
	_, err := valueobject.NewTaxID(fl.Field().String())
	return err == nil
}
