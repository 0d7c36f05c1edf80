package shared

import "github.com/shopspring/decimal"

// MaxScale is the number of fractional digits monetary values and stock
// quantities carry internally. Display totals round to DisplayScale.
const (
	MaxScale     = 4
	DisplayScale = 2
)

// Round4 rounds to the internal monetary scale.
func Round4(d decimal.Decimal) decimal.Decimal {
	return d.Round(MaxScale)
}

// Round2 rounds to the display scale.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(DisplayScale)
}

// WithinScale reports whether d carries at most MaxScale fractional digits.
func WithinScale(d decimal.Decimal) bool {
	return d.Equal(d.Round(MaxScale))
}
