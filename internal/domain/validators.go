package domain

import (
	"fmt"
	"regexp"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	countryRegex  = regexp.MustCompile(`^[A-Z]{2}$`)
)

// MaxTicketsPerPurchase caps a single ticket order.
const MaxTicketsPerPurchase = 1000

// ValidateEmail checks if an email address is valid.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateCurrency checks if a currency code is ISO 4217.
func ValidateCurrency(currency string) error {
	if !currencyRegex.MatchString(currency) {
		return fmt.Errorf("invalid currency code: %s", currency)
	}
	return nil
}

// ValidateCountry checks an ISO 3166-1 alpha-2 code.
func ValidateCountry(country string) error {
	if !countryRegex.MatchString(country) {
		return fmt.Errorf("invalid country code: %s", country)
	}
	return nil
}

// ValidatePositiveAmount checks that an amount is positive (in minor units).
func ValidatePositiveAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", amount)
	}
	return nil
}

// ValidateQuantity checks a ticket quantity.
func ValidateQuantity(q int) error {
	if q <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", q)
	}
	if q > MaxTicketsPerPurchase {
		return fmt.Errorf("quantity %d exceeds maximum of %d", q, MaxTicketsPerPurchase)
	}
	return nil
}
