package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCentsRoundTrip(t *testing.T) {
	amount := decimal.RequireFromString("22.5")
	assert.Equal(t, int64(2250), Cents(amount))
	assert.True(t, FromCents(2250).Equal(amount))
}

func TestCentsRoundsFractions(t *testing.T) {
	assert.Equal(t, int64(1001), Cents(decimal.RequireFromString("10.005")))
	assert.Equal(t, int64(0), Cents(decimal.Zero))
}

func TestWhole(t *testing.T) {
	assert.Equal(t, "30", Whole(decimal.RequireFromString("30")).String())
	assert.Equal(t, "23", Whole(decimal.RequireFromString("22.5")).String())
	assert.Equal(t, "22", Whole(decimal.RequireFromString("22.49")).String())
}
