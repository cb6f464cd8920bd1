package reconciliation

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatDate trims a server date such as "2024-03-15+01:00" or
// "2024-03-15T10:00:00+01:00" to "2024-03-15".
func FormatDate(s string) string {
	if i := strings.IndexAny(s, "+T"); i >= 0 {
		return s[:i]
	}
	return s
}

// StripCodePrefix turns "code:FIRMA" into "FIRMA".
func StripCodePrefix(s string) string {
	return strings.TrimPrefix(s, "code:")
}

// FormatAmount renders d with two decimals and a decimal comma.
func FormatAmount(d decimal.Decimal) string {
	return strings.Replace(d.StringFixed(2), ".", ",", 1)
}

// ParseAmount parses a server amount, returning zero for empty or malformed input.
func ParseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Payment status codes
const (
	StatusPaid    = "stavUhr.uhrazeno"
	StatusPartial = "stavUhr.castUhr"
	StatusUnpaid  = "stavUhr.neuhrazeno"
)

// PaymentStatusLabel maps a stavUhrK code to its display label.
func PaymentStatusLabel(code string) string {
	switch code {
	case StatusPaid:
		return "Uhrazeno"
	case StatusPartial:
		return "Částečně"
	case StatusUnpaid, "":
		return "Neuhrazeno"
	default:
		return code
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
