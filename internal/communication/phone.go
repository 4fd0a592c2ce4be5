package communication

import "strings"

// NormalizeE164 strips formatting and ensures a leading +. It returns "" when no
// digits remain.
func NormalizeE164(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	digits := digitsOnly(value)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// ValidateE164 normalizes value and rejects anything that is not a plausible
// E.164 number: a leading +, a non-zero country digit, 8 to 15 digits.
func ValidateE164(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", requiredField("phone_number")
	}
	if !strings.HasPrefix(trimmed, "+") {
		return "", &ValidationError{Field: "phone_number", Reason: "must be E.164 with a leading +"}
	}
	digits := digitsOnly(trimmed)
	if len(digits) < 8 || len(digits) > 15 || digits[0] == '0' {
		return "", &ValidationError{Field: "phone_number", Reason: "must be E.164 with 8 to 15 digits"}
	}
	return "+" + digits, nil
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
