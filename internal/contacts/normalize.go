package contacts

import (
	"regexp"
	"strings"
)

var digitsRe = regexp.MustCompile(`\d+`)

// NormalizePhone coerces messy caller input like "(555) 222-3333" into E.164.
// Ten-digit numbers get the NANP country code.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	digits := strings.Join(digitsRe.FindAllString(raw, -1), "")
	switch {
	case digits == "":
		return ""
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return "+" + digits
	case strings.HasPrefix(raw, "+"):
		return "+" + digits
	default:
		return "+" + digits
	}
}

// NormalizeName title-cases a caller-spoken name ("john doe" -> "John Doe").
func NormalizeName(raw string) string {
	fields := strings.Fields(strings.TrimSpace(raw))
	for i, f := range fields {
		lower := strings.ToLower(f)
		fields[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(fields, " ")
}

// NormalizeEmail lowercases and trims.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
