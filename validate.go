package flow

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	validate     = newValidator()
)

// noPostcodeCountries do not use postal codes, so billing is complete without one.
var noPostcodeCountries = map[string]bool{
	"AE": true, "AG": true, "AO": true, "AW": true, "BF": true, "BI": true, "BJ": true,
	"BO": true, "BS": true, "BW": true, "BZ": true, "CD": true, "CF": true, "CG": true,
	"CI": true, "CK": true, "CM": true, "DJ": true, "DM": true, "ER": true, "FJ": true,
	"GD": true, "GH": true, "GM": true, "GQ": true, "GY": true, "HK": true, "IE": true,
	"KI": true, "KM": true, "KN": true, "KP": true, "LC": true, "ML": true, "MO": true,
	"MR": true, "MW": true, "NA": true, "NR": true, "NU": true, "QA": true, "RW": true,
	"SB": true, "SC": true, "SL": true, "SR": true, "ST": true, "SY": true, "TD": true,
	"TF": true, "TG": true, "TK": true, "TL": true, "TO": true, "TV": true, "UG": true,
	"VU": true, "YE": true, "ZW": true,
}

// Validate checks the snapshot before it is sent to the backend.
func (s CheckoutSnapshot) Validate() error {
	if err := validate.Struct(s); err != nil {
		return normalizeValidationError(err)
	}
	return nil
}

// Validate checks that the address is complete enough for billing.
func (a Address) Validate() error {
	if err := validate.Struct(a); err != nil {
		return normalizeValidationError(err)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	if err := v.RegisterValidation("flow_email", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		return IsValidEmail(value)
	}); err != nil {
		panic(err)
	}

	if err := v.RegisterValidation("postcode_unless_exempt", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		if strings.TrimSpace(value) != "" {
			return true
		}
		country := fl.Parent().FieldByName("Country")
		if !country.IsValid() || country.Kind() != reflect.String {
			return false
		}
		return noPostcodeCountries[strings.ToUpper(country.String())]
	}); err != nil {
		panic(err)
	}

	return v
}

func normalizeValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	first := validationErrs[0]
	fieldPath := jsonPath(first)
	message := validationMessage(first)
	return newError(InvalidInput, fieldErrorCode(fieldPath), fmt.Sprintf("%s %s", fieldPath, message), withCause(err))
}

func jsonPath(fe validator.FieldError) string {
	path := fe.Namespace()
	if idx := strings.Index(path, "."); idx >= 0 {
		path = path[idx+1:]
	}
	if path == "" {
		return fe.Field()
	}
	return path
}

func fieldErrorCode(path string) ErrorCode {
	switch {
	case strings.HasSuffix(path, "email"):
		return CodeInvalidEmail
	case strings.HasPrefix(path, "billing"), strings.HasPrefix(path, "address"),
		strings.HasPrefix(path, "city"), strings.HasPrefix(path, "zip"), strings.HasPrefix(path, "country"):
		return CodeAddressInvalid
	case path == "amount":
		return CodeAmountInvalid
	case path == "currency":
		return CodeCurrencyInvalid
	default:
		return CodeFieldsIncomplete
	}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "uppercase":
		return "must be uppercase"
	case "url":
		return "must be a valid URL"
	case "flow_email":
		return "must be a valid email address"
	case "postcode_unless_exempt":
		return "is required for this country"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// IsValidEmail is the structural local@domain.tld check. Only surrounding whitespace is
// trimmed.
func IsValidEmail(value string) bool {
	return emailPattern.MatchString(strings.TrimSpace(value))
}
