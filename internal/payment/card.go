package payment

import (
	"strings"
	"time"
)

var cardSeparators = strings.NewReplacer(" ", "", "-", "")

// NormalizeCardNumber strips the spaces and dashes customers type between
// digit groups.
func NormalizeCardNumber(number string) string {
	return cardSeparators.Replace(number)
}

func CardBrand(digits string) string {
	switch {
	case strings.HasPrefix(digits, "4"):
		return "visa"
	case hasPrefixInRange(digits, 2, 51, 55), hasPrefixInRange(digits, 4, 2221, 2720):
		return "mastercard"
	case strings.HasPrefix(digits, "34"), strings.HasPrefix(digits, "37"):
		return "amex"
	case strings.HasPrefix(digits, "6011"), strings.HasPrefix(digits, "65"):
		return "discover"
	default:
		return "unknown"
	}
}

func hasPrefixInRange(digits string, n, lo, hi int) bool {
	if len(digits) < n {
		return false
	}
	v := 0
	for _, r := range digits[:n] {
		v = v*10 + int(r-'0')
	}
	return v >= lo && v <= hi
}

// CardExpired reports whether a card expiring in month/year is unusable at
// now. Cards are valid through the last day of their expiry month (UTC).
// Two-digit years are read as 20YY.
func CardExpired(month, year int, now time.Time) bool {
	if year < 100 {
		year += 2000
	}
	firstInvalid := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return !now.UTC().Before(firstInvalid)
}

func lastFour(digits string) string {
	if len(digits) <= 4 {
		return digits
	}
	return digits[len(digits)-4:]
}
