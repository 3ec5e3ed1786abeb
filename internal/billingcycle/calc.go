// Package billingcycle computes billing-period boundaries, discounted
// pricing and mid-cycle proration. It is pure: no I/O, no clock, no state.
package billingcycle

import (
	"errors"
	"time"
)

var (
	ErrInvalidPeriodLength = errors.New("invalid_period_length")
	ErrInvalidPeriodDays   = errors.New("invalid_period_days")
)

// DiscountTable maps a billing-period length in months to a whole-percent
// discount applied to the summed monthly price.
type DiscountTable map[int]int64

// DefaultDiscounts matches the published subscription periods:
// monthly full price, quarterly 10%, semi-annual 15%, annual 20%.
var DefaultDiscounts = DiscountTable{
	1:  0,
	3:  10,
	6:  15,
	12: 20,
}

// SupportedPeriods lists the billing-period lengths a tenant may choose.
var SupportedPeriods = []int{1, 3, 6, 12}

// PeriodBounds returns the half-open billing period starting at start and
// spanning lengthInMonths calendar months. When the start day does not
// exist in the target month the end clamps to that month's last day
// (Jan 31 + 1 month = Feb 28/29).
func PeriodBounds(start time.Time, lengthInMonths int) (time.Time, time.Time, error) {
	if lengthInMonths <= 0 {
		return time.Time{}, time.Time{}, ErrInvalidPeriodLength
	}
	return start, addMonthsClamped(start, lengthInMonths), nil
}

// Price returns the total charge in currency minor units for a period of
// the given length: basePrice per month, summed, with the table discount
// applied. The division rounds half to even so that rounding error does
// not systematically favor either side across many tenants.
func Price(basePrice int64, lengthInMonths int, discounts DiscountTable) (int64, error) {
	if lengthInMonths <= 0 {
		return 0, ErrInvalidPeriodLength
	}
	discount := discounts[lengthInMonths]
	if discount < 0 || discount > 100 {
		return 0, ErrInvalidPeriodLength
	}
	gross := basePrice * int64(lengthInMonths)
	return divideHalfEven(gross*(100-discount), 100), nil
}

// Proration is the outcome of a mid-cycle plan change. Exactly one of
// Charge and Credit is non-zero: upgrades charge the difference for the
// remaining days immediately, downgrades carry a credit into the next
// invoice instead of refunding.
type Proration struct {
	Charge int64
	Credit int64
}

// Prorate computes a linear day-based adjustment for switching from
// oldPrice to newPrice (both full-period amounts) with daysRemaining of
// totalDays left in the current period.
func Prorate(oldPrice, newPrice int64, daysRemaining, totalDays int) (Proration, error) {
	if totalDays <= 0 || daysRemaining < 0 || daysRemaining > totalDays {
		return Proration{}, ErrInvalidPeriodDays
	}
	diff := divideHalfEven((newPrice-oldPrice)*int64(daysRemaining), int64(totalDays))
	if diff >= 0 {
		return Proration{Charge: diff}, nil
	}
	return Proration{Credit: -diff}, nil
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	target := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(target.Year(), target.Month()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// divideHalfEven divides num by den rounding half to even (banker's
// rounding). den must be positive.
func divideHalfEven(num, den int64) int64 {
	neg := num < 0
	if neg {
		num = -num
	}
	quo := num / den
	rem := num % den
	switch {
	case rem*2 > den:
		quo++
	case rem*2 == den && quo%2 == 1:
		quo++
	}
	if neg {
		return -quo
	}
	return quo
}
