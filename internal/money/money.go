// Package money converts between decimal amounts used in calculations and the
// integer cents stored in Postgres.
package money

import "github.com/shopspring/decimal"

// Cents rounds d to the nearest cent and returns it as an integer.
func Cents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// FromCents turns stored cents back into a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Whole rounds d to the nearest whole currency unit, half away from zero.
func Whole(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}
