package auth

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	minNameLength     = 2
	minPasswordLength = 6
	// bcrypt refuses longer input.
	maxPasswordBytes  = 72
)

// normalizeEmail trims and lower-cases email and checks it is a bare
// address.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", validationError(FieldEmail, "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", validationError(FieldEmail, "invalid email")
	}
	return email, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < minNameLength {
		return "", validationError(FieldName, "name must be at least 2 characters")
	}
	return name, nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return validationError(FieldPassword, "password must be at least 6 characters")
	}
	if len(password) > maxPasswordBytes {
		return validationError(FieldPassword, "password must be at most 72 bytes")
	}
	return nil
}
