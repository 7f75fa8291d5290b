package actions

import (
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrValidation marks input rejected before any request is issued.
var ErrValidation = errors.New("validation failed")

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// normalize trims and NFC-normalizes user-typed text.
func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func requireID(field, raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", invalid(field, "required")
	}
	return id, nil
}

// parseQuantity reads a quantity input. An empty input means 1 when
// defaultOne is set, mirroring the product page's quantity box.
func parseQuantity(field, raw string, defaultOne bool) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if defaultOne {
			return 1, nil
		}
		return 0, invalid(field, "required")
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid(field, "must be a whole number")
	}
	if n < 1 {
		return 0, invalid(field, "must be at least 1")
	}
	return n, nil
}

func validateCoupon(raw string) (string, error) {
	code := normalize(raw)
	if code == "" {
		return "", invalid("code", "required")
	}
	return code, nil
}

// validateEmail accepts a bare address, the way an email input does.
func validateEmail(raw string) (string, error) {
	email := normalize(raw)
	if email == "" {
		return "", invalid("email", "required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return "", invalid("email", "must be a valid email address")
	}
	return email, nil
}
