package utils

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ttacon/libphonenumber"
)

var CountryCode = "SA"

var validate = validator.New()

// ValidateStruct runs validator/v10 over a command payload's binding tags.
func ValidateStruct(input interface{}) error {
	return validate.Struct(input)
}

func IsValidEmail(email string) bool {
	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	return emailRegex.MatchString(email)
}

// ValidatePhoneNumber normalizes and validates a mobile number for the
// configured country, returning E.164 form.
func ValidatePhoneNumber(phoneNumber, countryCode string) (string, error) {
	if countryCode == "" {
		countryCode = CountryCode
	}
	num, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return "", fmt.Errorf("invalid phone number: %v", err)
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone number for region %s", countryCode)
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

func GenerateUniqueFilename() string {
	return uuid.NewString()
}

func ProcessValidationErrors(err error) map[string]string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"error": err.Error()}
	}

	errorResponse := make(map[string]string)

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func UniqueSlice[T comparable](slice []T) []T {
	seen := make(map[T]struct{}, len(slice))
	result := make([]T, 0, len(slice))
	for _, v := range slice {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

func DereferencePtr[T any](ptr *T, defaults ...T) T {
	if ptr != nil {
		return *ptr
	}
	var def T
	if len(defaults) > 0 {
		def = defaults[0]
	}
	return def
}

func NilIfEmpty[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

// FormatDateArabic renders a date with Arabic month names for notification
// bodies and archive labels.
func FormatDateArabic(t time.Time) string {
	months := map[time.Month]string{
		time.January: "يناير", time.February: "فبراير", time.March: "مارس",
		time.April: "أبريل", time.May: "مايو", time.June: "يونيو",
		time.July: "يوليو", time.August: "أغسطس", time.September: "سبتمبر",
		time.October: "أكتوبر", time.November: "نوفمبر", time.December: "ديسمبر",
	}
	return fmt.Sprintf("%d %s %d", t.Day(), months[t.Month()], t.Year())
}

func UppercaseFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
