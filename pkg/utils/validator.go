package utils

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidatePhoneNumber validates an E.164 phone number (required for WhatsApp delivery)
func ValidatePhoneNumber(phone string) error {
	matched, _ := regexp.MatchString(`^\+[1-9]\d{7,14}$`, phone)
	if !matched {
		return fmt.Errorf("phone number must be in E.164 format: %s", phone)
	}
	return nil
}

// ValidateAmount validates an expense amount
func ValidateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("amount must not be negative: %s", amount.String())
	}
	return nil
}

// SanitizeString removes control characters
func SanitizeString(s string) string {
	return regexp.MustCompile(`[\x00-\x1f\x7f]`).ReplaceAllString(s, "")
}
