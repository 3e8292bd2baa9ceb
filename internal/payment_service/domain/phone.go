package domain

import "strings"

// NormalizePhoneNumber strips non-digits and leading zeros, then prefixes
// dialingCode unless the number already starts with it. It is idempotent for
// dialing codes that do not begin with zero.
func NormalizePhoneNumber(raw, dialingCode string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")
	if strings.HasPrefix(digits, dialingCode) {
		return digits
	}
	return dialingCode + digits
}
