package validation

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	// Custom validator instance
	validate = validator.New()

	// Regex patterns for validation
	cusipPattern        = regexp.MustCompile(`^[0-9A-Z]{9}$`)
	maturityPattern     = regexp.MustCompile(`^[0-9]{1,2}[MY]$`)
	counterpartyPattern = regexp.MustCompile(`^[A-Za-z0-9 .&-]{1,50}$`)
)

// Sides and trade statuses accepted on the wire.
var (
	sides         = map[string]bool{"BUY": true, "SELL": true}
	tradeStatuses = map[string]bool{"PENDING": true, "EXECUTED": true, "CANCELLED": true, "FAILED": true}
)

// ValidationError represents a validation error with field and message
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

func init() {
	// decimal.Decimal fields validate as float64 so gte/lte apply to them
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	validate.RegisterValidation("cusip", validateCUSIP)
	validate.RegisterValidation("maturity", validateMaturity)
	validate.RegisterValidation("side", validateSide)
	validate.RegisterValidation("tradestatus", validateTradeStatus)
	validate.RegisterValidation("counterparty", validateCounterparty)
	validate.RegisterValidation("price", validatePrice)
	validate.RegisterValidation("finite", validateFinite)
}

// validateCUSIP validates the 9 character CUSIP identifier
func validateCUSIP(fl validator.FieldLevel) bool {
	return cusipPattern.MatchString(fl.Field().String())
}

// validateMaturity accepts tenor labels like 2Y or 6M. Labels outside the
// on-the-run set are allowed; callers decide how to order them.
func validateMaturity(fl validator.FieldLevel) bool {
	return maturityPattern.MatchString(fl.Field().String())
}

func validateSide(fl validator.FieldLevel) bool {
	return sides[fl.Field().String()]
}

func validateTradeStatus(fl validator.FieldLevel) bool {
	return tradeStatuses[fl.Field().String()]
}

func validateCounterparty(fl validator.FieldLevel) bool {
	return counterpartyPattern.MatchString(fl.Field().String())
}

// validatePrice validates price is positive and less than 1000 points
func validatePrice(fl validator.FieldLevel) bool {
	price, ok := floatValue(fl.Field())
	if !ok {
		return false
	}
	return price > 0 && price < 1000
}

// validateFinite rejects NaN and infinities
func validateFinite(fl validator.FieldLevel) bool {
	v, ok := floatValue(fl.Field())
	if !ok {
		return false
	}
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func floatValue(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.Int, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	default:
		return 0, false
	}
}

// ValidateStruct validates a struct using tags
func ValidateStruct(s interface{}) ValidationErrors {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return ValidationErrors{{Field: "struct", Message: err.Error()}}
	}

	var errors ValidationErrors
	for _, err := range fieldErrs {
		field := err.Field()
		errors = append(errors, ValidationError{
			Field:   field,
			Message: getErrorMessage(field, err.Tag(), err.Param()),
			Value:   err.Value(),
		})
	}

	return errors
}

// getErrorMessage returns a user-friendly error message
func getErrorMessage(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "cusip":
		return fmt.Sprintf("%s must be a 9 character CUSIP", field)
	case "maturity":
		return fmt.Sprintf("%s must be a tenor such as 2Y, 10Y or 6M", field)
	case "side":
		return fmt.Sprintf("%s must be BUY or SELL", field)
	case "tradestatus":
		return fmt.Sprintf("%s must be PENDING, EXECUTED, CANCELLED or FAILED", field)
	case "counterparty":
		return fmt.Sprintf("%s must be a valid counterparty code", field)
	case "price":
		return fmt.Sprintf("%s must be a positive price below 1000 points", field)
	case "finite":
		return fmt.Sprintf("%s must be a finite number", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}

// SanitizeString removes potentially dangerous characters
func SanitizeString(s string) string {
	// Remove null bytes and control characters
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 { // Keep tab, newline, carriage return
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

// SanitizeCode trims and upper-cases identifiers such as CUSIPs and sides.
func SanitizeCode(s string) string {
	return strings.ToUpper(SanitizeString(s))
}
