package billingcycle

import "errors"

var ErrUnknownPlan = errors.New("unknown_plan")

// Plan is a subscription tier. Prices are currency minor units per month.
type Plan struct {
	Code         string
	Name         string
	MonthlyPrice int64
	Currency     string
	Rank         int
}

// Catalog lists the tiers a tenant can subscribe to, lowest first.
var Catalog = []Plan{
	{Code: "basic", Name: "Basic Plan", MonthlyPrice: 500, Currency: "USD", Rank: 0},
	{Code: "advance", Name: "Advance Plan", MonthlyPrice: 2900, Currency: "USD", Rank: 1},
	{Code: "premium", Name: "Premium Plan", MonthlyPrice: 9900, Currency: "USD", Rank: 2},
}

// LookupPlan returns the catalog entry for a plan code.
func LookupPlan(code string) (Plan, error) {
	for _, plan := range Catalog {
		if plan.Code == code {
			return plan, nil
		}
	}
	return Plan{}, ErrUnknownPlan
}
