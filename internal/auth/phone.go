package auth

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizePhone parses a phone number written in international format and
// returns it in E.164 form. Numbers only need a plausible length for their
// country; reserved ranges such as 555 are accepted.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", validationError(FieldPhone, "phone is required")
	}
	if !strings.HasPrefix(raw, "+") {
		return "", validationError(FieldPhone, "phone must include the country code")
	}
	num, err := phonenumbers.Parse(raw, "")
	if err != nil || !phonenumbers.IsPossibleNumber(num) {
		return "", validationError(FieldPhone, "invalid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
