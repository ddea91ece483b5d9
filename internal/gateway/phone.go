package gateway

import (
	"strings"

	"swimnotify/internal/constants"
	"swimnotify/internal/errors"
)

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// NormalizePhone converts a local or international number into digits-only
// international form. A single leading 0 is replaced by the country code and a
// number without the country code gets it prepended.
// "0821-400-4677" -> "6282140044677"
func NormalizePhone(raw, countryCode string) (string, error) {
	if countryCode == "" {
		countryCode = constants.DefaultCountryCode
	}

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return "", errors.NewValidationError("to", raw, "phone number has no digits")
	}

	switch {
	case strings.HasPrefix(digits, "0"):
		digits = countryCode + digits[1:]
	case strings.HasPrefix(digits, countryCode):
	default:
		digits = countryCode + digits
	}

	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return "", errors.NewValidationError("to", raw, "phone number must have between 7 and 15 digits")
	}
	return digits, nil
}
