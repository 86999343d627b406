package diet

import (
	"errors"
	"fmt"
	"strings"
)

// ErrOverBudget is wrapped by OverBudget.
var ErrOverBudget = errors.New("fluid over budget")

// FluidRestrictionTier is a named daily fluid allowance.
type FluidRestrictionTier string

const (
	FluidNone      FluidRestrictionTier = "none"
	Fluid1000      FluidRestrictionTier = "1000ml"
	Fluid1200      FluidRestrictionTier = "1200ml"
	Fluid1500      FluidRestrictionTier = "1500ml"
	Fluid1800      FluidRestrictionTier = "1800ml"
	Fluid2000      FluidRestrictionTier = "2000ml"
	Fluid2500      FluidRestrictionTier = "2500ml"
	FluidAsOrdered FluidRestrictionTier = "as-ordered"
)

// Budget is the per-meal milliliter allowance for a tier.
type Budget struct {
	BreakfastML int
	LunchML     int
	DinnerML    int
	Unlimited   bool
}

// For returns the allowance for a meal.
func (b Budget) For(meal Meal) int {
	switch meal {
	case Breakfast:
		return b.BreakfastML
	case Lunch:
		return b.LunchML
	case Dinner:
		return b.DinnerML
	}
	return 0
}

type tierSpec struct {
	tier   FluidRestrictionTier
	label  string
	budget Budget
}

// The dietary share of each daily allowance; nursing covers the remainder.
var fluidTable = []tierSpec{
	{FluidNone, "No Restriction", Budget{Unlimited: true}},
	{Fluid1000, "1000ml (34oz)", Budget{BreakfastML: 120, LunchML: 120, DinnerML: 160}},
	{Fluid1200, "1200ml (41oz)", Budget{BreakfastML: 150, LunchML: 150, DinnerML: 200}},
	{Fluid1500, "1500ml (51oz)", Budget{BreakfastML: 240, LunchML: 240, DinnerML: 240}},
	{Fluid1800, "1800ml (61oz)", Budget{BreakfastML: 300, LunchML: 300, DinnerML: 300}},
	{Fluid2000, "2000ml (68oz)", Budget{BreakfastML: 320, LunchML: 320, DinnerML: 320}},
	{Fluid2500, "2500ml (85oz)", Budget{BreakfastML: 400, LunchML: 400, DinnerML: 400}},
	{FluidAsOrdered, "As Ordered", Budget{Unlimited: true}},
}

// FluidTiers returns every tier in ascending order.
func FluidTiers() []FluidRestrictionTier {
	out := make([]FluidRestrictionTier, len(fluidTable))
	for i, t := range fluidTable {
		out[i] = t.tier
	}
	return out
}

// ParseFluidTier accepts the canonical value ("1000ml"), the ward label
// ("1000ml (34oz)") or an empty string for no restriction.
func ParseFluidTier(s string) (FluidRestrictionTier, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	if norm == "" {
		return FluidNone, nil
	}
	for _, t := range fluidTable {
		if norm == string(t.tier) || norm == strings.ToLower(t.label) {
			return t.tier, nil
		}
	}
	norm = strings.NewReplacer(" ", "-", "_", "-").Replace(norm)
	for _, t := range fluidTable {
		if norm == string(t.tier) {
			return t.tier, nil
		}
	}
	return "", fmt.Errorf("unknown fluid restriction %q", s)
}

// Label returns the ward display label of the tier.
func (t FluidRestrictionTier) Label() string {
	for _, spec := range fluidTable {
		if spec.tier == t {
			return spec.label
		}
	}
	return string(t)
}

// Restricted reports whether the tier imposes a ceiling.
func (t FluidRestrictionTier) Restricted() bool {
	return !BudgetFor(t).Unlimited
}

// Valid reports whether t is one of the canonical tiers.
func (t FluidRestrictionTier) Valid() bool {
	for _, spec := range fluidTable {
		if spec.tier == t {
			return true
		}
	}
	return false
}

// BudgetFor maps a tier to its per-meal budgets. An empty tier means no
// restriction. Unknown tiers get a zero budget so no fluid passes.
func BudgetFor(tier FluidRestrictionTier) Budget {
	if tier == "" {
		tier = FluidNone
	}
	for _, spec := range fluidTable {
		if spec.tier == tier {
			return spec.budget
		}
	}
	return Budget{}
}

// UsageState is the cumulative fluid volume per meal.
type UsageState struct {
	BreakfastML int `json:"breakfast_ml"`
	LunchML     int `json:"lunch_ml"`
	DinnerML    int `json:"dinner_ml"`
}

// For returns the usage recorded for a meal.
func (u UsageState) For(meal Meal) int {
	switch meal {
	case Breakfast:
		return u.BreakfastML
	case Lunch:
		return u.LunchML
	case Dinner:
		return u.DinnerML
	}
	return 0
}

func (u UsageState) with(meal Meal, v int) UsageState {
	switch meal {
	case Breakfast:
		u.BreakfastML = v
	case Lunch:
		u.LunchML = v
	case Dinner:
		u.DinnerML = v
	}
	return u
}

// Reset zeroes one meal's usage.
func (u UsageState) Reset(meal Meal) UsageState {
	return u.with(meal, 0)
}

// OverBudget is returned when an addition would exceed the meal budget.
// RemainingML is what was still available before the addition.
type OverBudget struct {
	Meal        Meal
	RequestedML int
	RemainingML int
}

func (o *OverBudget) Error() string {
	return fmt.Sprintf("%s fluids: requested %dml exceeds remaining %dml", o.Meal, o.RequestedML, o.RemainingML)
}

func (o *OverBudget) Unwrap() error { return ErrOverBudget }

// AddUsage adds volumeML to the meal's usage. When the tier restricts fluids
// and the total would exceed the meal's budget, current is returned unchanged
// together with an *OverBudget.
func AddUsage(tier FluidRestrictionTier, meal Meal, volumeML int, current UsageState) (UsageState, error) {
	if meal.Index() < 0 {
		return current, fmt.Errorf("unknown meal %q", meal)
	}
	if volumeML < 0 {
		return current, fmt.Errorf("negative volume %d", volumeML)
	}
	used := current.For(meal)
	budget := BudgetFor(tier)
	if !budget.Unlimited {
		remaining := budget.For(meal) - used
		if remaining < 0 {
			remaining = 0
		}
		if volumeML > remaining {
			return current, &OverBudget{Meal: meal, RequestedML: volumeML, RemainingML: remaining}
		}
	}
	return current.with(meal, used+volumeML), nil
}

// Remaining returns the meal budget left after usage, or -1 when unlimited.
func Remaining(tier FluidRestrictionTier, meal Meal, current UsageState) int {
	budget := BudgetFor(tier)
	if budget.Unlimited {
		return -1
	}
	left := budget.For(meal) - current.For(meal)
	if left < 0 {
		return 0
	}
	return left
}
