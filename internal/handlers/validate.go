package handlers

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"pathways/internal/account"
	"pathways/internal/apperr"
	"pathways/internal/store"
)

// Validation limits for account fields.
const (
	maxNameLen     = 100
	maxEmailLen    = 254
	maxPasswordLen = 72 // bcrypt ignores anything longer
	maxSearchLen   = 200
)

// validateSignup checks sign-up input and returns the normalized email and
// name.
func validateSignup(email, password string, name *string) (string, *string, error) {
	email, err := validateEmail(email)
	if err != nil {
		return "", nil, err
	}
	if err := validatePassword("signup", password); err != nil {
		return "", nil, err
	}
	name, err = validateName(name)
	if err != nil {
		return "", nil, err
	}
	return email, name, nil
}

func validateEmail(email string) (string, error) {
	email = store.NormalizeEmail(email)
	if utf8.RuneCountInString(email) > maxEmailLen {
		return "", apperr.Validation("email", "email is too long")
	}
	if err := account.ValidateEmail(email); err != nil {
		return "", err
	}
	return email, nil
}

func validatePassword(op, password string) error {
	if len(password) < account.MinPasswordLength {
		return apperr.Validation(op, "password must be at least 8 characters")
	}
	if len(password) > maxPasswordLen {
		return apperr.Validation(op, "password must be at most 72 bytes")
	}
	return nil
}

// validateName trims name; a blank name becomes nil.
func validateName(name *string) (*string, error) {
	if name == nil {
		return nil, nil
	}
	n := strings.TrimSpace(*name)
	if n == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(n) > maxNameLen {
		return nil, apperr.Validation("name", "name is too long (max 100 characters)")
	}
	return &n, nil
}

// parseLimit reads a history limit query value. Empty means the default.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return store.DefaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperr.Validation("limit", "limit must be a positive integer")
	}
	return min(n, store.DefaultHistoryLimit), nil
}
