package watchlist

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var percentFactor = decimal.NewFromInt(100)

const maxPercentInput = 16

// MaxPercent is the largest threshold accepted from user input (1000x).
var MaxPercent = decimal.NewFromInt(100000)

// ParsePercent turns user input such as "150", "150%" or "137.5%" into a
// threshold ratio (1.5, 1.375). Only plain decimal notation up to
// MaxPercent is accepted.
func ParsePercent(s string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("empty threshold")
	}
	if len(raw) > maxPercentInput || strings.ContainsAny(raw, "eE") {
		return decimal.Decimal{}, fmt.Errorf("threshold %q is not a plain percentage", s)
	}
	pct, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse threshold %q: %w", s, err)
	}
	if pct.GreaterThan(MaxPercent) {
		return decimal.Decimal{}, fmt.Errorf("threshold %s%% above %s%%", pct, MaxPercent)
	}
	threshold := pct.Div(percentFactor)
	if err := ValidateThreshold(threshold); err != nil {
		return decimal.Decimal{}, err
	}
	return threshold, nil
}

// FormatPercent renders a threshold ratio as a percentage ("150" for 1.5).
func FormatPercent(threshold decimal.Decimal) string {
	return threshold.Mul(percentFactor).String()
}
