package payment

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type cardInput struct {
	Number         string `json:"card_number" validate:"required,number,min=13,max=19,credit_card"`
	CardholderName string `json:"cardholder_name" validate:"required"`
	ExpMonth       int    `json:"exp_month" validate:"min=1,max=12"`
	ExpYear        int    `json:"exp_year" validate:"required,gt=0"`
	CVV            string `json:"cvv" validate:"required,number,min=3,max=4"`
}

type payPalInput struct {
	Email string `json:"paypal_email" validate:"required,email"`
}

type bankInput struct {
	AccountHolder string `json:"account_holder" validate:"required"`
	AccountNumber string `json:"account_number" validate:"required,alphanum,min=8,max=34"`
}

type tokenInput struct {
	PaymentToken string `json:"payment_token" validate:"required"`
}

// check validates in and reports the first failing field as a
// *ValidationError.
func check(in interface{}) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validation error: %w", err)
	}
	fe := verrs[0]
	return invalid(fe.Field(), message(fe))
}

func message(fe validator.FieldError) string {
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch fe.Tag() {
	case "required":
		return "is required"
	case "number":
		return "must contain only digits"
	case "alphanum":
		return "must be alphanumeric"
	case "email":
		return "is not a valid email address"
	case "credit_card":
		return "failed checksum"
	case "min":
		return fmt.Sprintf("must be at least %s%s", fe.Param(), unit)
	case "max":
		return fmt.Sprintf("must be at most %s%s", fe.Param(), unit)
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	}
	return "failed " + fe.Tag()
}
