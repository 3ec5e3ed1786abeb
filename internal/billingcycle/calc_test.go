package billingcycle

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPeriodBoundsClampsToMonthEnd(t *testing.T) {
	cases := []struct {
		start  time.Time
		months int
		end    time.Time
	}{
		{date(2025, time.January, 31), 1, date(2025, time.February, 28)},
		{date(2024, time.January, 31), 1, date(2024, time.February, 29)},
		{date(2025, time.January, 15), 1, date(2025, time.February, 15)},
		{date(2025, time.March, 31), 3, date(2025, time.June, 30)},
		{date(2025, time.August, 31), 6, date(2026, time.February, 28)},
		{date(2025, time.February, 28), 12, date(2026, time.February, 28)},
		{date(2025, time.November, 30), 3, date(2026, time.February, 28)},
	}
	for _, tc := range cases {
		start, end, err := PeriodBounds(tc.start, tc.months)
		if err != nil {
			t.Fatalf("PeriodBounds(%v, %d): %v", tc.start, tc.months, err)
		}
		if !start.Equal(tc.start) {
			t.Errorf("PeriodBounds(%v, %d) start = %v", tc.start, tc.months, start)
		}
		if !end.Equal(tc.end) {
			t.Errorf("PeriodBounds(%v, %d) end = %v, want %v", tc.start, tc.months, end, tc.end)
		}
	}
}

func TestPeriodBoundsRejectsNonPositiveLength(t *testing.T) {
	if _, _, err := PeriodBounds(date(2025, time.January, 1), 0); err != ErrInvalidPeriodLength {
		t.Fatalf("err = %v, want %v", err, ErrInvalidPeriodLength)
	}
	if _, _, err := PeriodBounds(date(2025, time.January, 1), -3); err != ErrInvalidPeriodLength {
		t.Fatalf("err = %v, want %v", err, ErrInvalidPeriodLength)
	}
}

func TestPriceAppliesPeriodDiscount(t *testing.T) {
	cases := []struct {
		base   int64
		months int
		want   int64
	}{
		{500, 1, 500},
		{500, 3, 1350},
		{500, 6, 2550},
		{500, 12, 4800},
		{2900, 1, 2900},
		{2900, 3, 7830},
		{2900, 12, 27840},
		{9900, 6, 50490},
		{9900, 12, 95040},
		// 2 months has no table entry, no discount applies.
		{2900, 2, 5800},
	}
	for _, tc := range cases {
		got, err := Price(tc.base, tc.months, DefaultDiscounts)
		if err != nil {
			t.Fatalf("Price(%d, %d): %v", tc.base, tc.months, err)
		}
		if got != tc.want {
			t.Errorf("Price(%d, %d) = %d, want %d", tc.base, tc.months, got, tc.want)
		}
	}
}

func TestPriceRoundsHalfToEven(t *testing.T) {
	// 5 * 3 * 90 = 1350, /100 = 13.5, rounds to 14 (even).
	got, err := Price(5, 3, DefaultDiscounts)
	if err != nil {
		t.Fatal(err)
	}
	if got != 14 {
		t.Fatalf("Price(5, 3) = %d, want 14", got)
	}
	// 25 * 6 * 85 = 12750, /100 = 127.5, rounds to 128 (even).
	got, err = Price(25, 6, DefaultDiscounts)
	if err != nil {
		t.Fatal(err)
	}
	if got != 128 {
		t.Fatalf("Price(25, 6) = %d, want 128", got)
	}
}

func TestProrateUpgradeCharges(t *testing.T) {
	p, err := Prorate(2900, 9900, 15, 30)
	if err != nil {
		t.Fatal(err)
	}
	if p.Charge != 3500 || p.Credit != 0 {
		t.Fatalf("Prorate = %+v, want Charge 3500", p)
	}
}

func TestProrateDowngradeCredits(t *testing.T) {
	p, err := Prorate(9900, 2900, 10, 30)
	if err != nil {
		t.Fatal(err)
	}
	if p.Credit != 2333 || p.Charge != 0 {
		t.Fatalf("Prorate = %+v, want Credit 2333", p)
	}
}

func TestProrateRejectsBadDays(t *testing.T) {
	if _, err := Prorate(100, 200, 31, 30); err != ErrInvalidPeriodDays {
		t.Fatalf("err = %v, want %v", err, ErrInvalidPeriodDays)
	}
	if _, err := Prorate(100, 200, -1, 30); err != ErrInvalidPeriodDays {
		t.Fatalf("err = %v, want %v", err, ErrInvalidPeriodDays)
	}
	if _, err := Prorate(100, 200, 0, 0); err != ErrInvalidPeriodDays {
		t.Fatalf("err = %v, want %v", err, ErrInvalidPeriodDays)
	}
}

func TestLookupPlan(t *testing.T) {
	plan, err := LookupPlan("advance")
	if err != nil {
		t.Fatal(err)
	}
	if plan.MonthlyPrice != 2900 || plan.Rank != 1 {
		t.Fatalf("LookupPlan(advance) = %+v", plan)
	}
	if _, err := LookupPlan("enterprise"); err != ErrUnknownPlan {
		t.Fatalf("err = %v, want %v", err, ErrUnknownPlan)
	}
}
