package diet

import (
	"errors"
	"testing"
)

func TestBudgetFor_Table(t *testing.T) {
	tests := []struct {
		tier                 FluidRestrictionTier
		breakfast, lunch, dn int
	}{
		{Fluid1000, 120, 120, 160},
		{Fluid1200, 150, 150, 200},
		{Fluid1500, 240, 240, 240},
		{Fluid1800, 300, 300, 300},
		{Fluid2000, 320, 320, 320},
		{Fluid2500, 400, 400, 400},
	}
	for _, tt := range tests {
		b := BudgetFor(tt.tier)
		if b.Unlimited {
			t.Errorf("%s: expected a ceiling", tt.tier)
		}
		if b.BreakfastML != tt.breakfast || b.LunchML != tt.lunch || b.DinnerML != tt.dn {
			t.Errorf("%s: got %d/%d/%d, want %d/%d/%d", tt.tier,
				b.BreakfastML, b.LunchML, b.DinnerML, tt.breakfast, tt.lunch, tt.dn)
		}
	}
	for _, tier := range []FluidRestrictionTier{FluidNone, FluidAsOrdered} {
		if !BudgetFor(tier).Unlimited {
			t.Errorf("%s: expected unlimited", tier)
		}
	}
}

func TestAddUsage_OverBudgetScenario(t *testing.T) {
	tier, err := ParseFluidTier("1000ml (34oz)")
	if err != nil {
		t.Fatalf("parse tier: %v", err)
	}

	state, err := AddUsage(tier, Breakfast, 130, UsageState{})
	var ob *OverBudget
	if !errors.As(err, &ob) {
		t.Fatalf("expected *OverBudget, got %v", err)
	}
	if ob.RequestedML != 130 || ob.RemainingML != 120 {
		t.Errorf("got requested=%d remaining=%d, want 130/120", ob.RequestedML, ob.RemainingML)
	}
	if !errors.Is(err, ErrOverBudget) {
		t.Error("expected errors.Is(err, ErrOverBudget)")
	}
	if state.BreakfastML != 0 {
		t.Errorf("usage should be unchanged on rejection, got %d", state.BreakfastML)
	}
}

func TestAddUsage_Cumulative(t *testing.T) {
	state := UsageState{}
	var err error
	state, err = AddUsage(Fluid1000, Dinner, 100, state)
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	state, err = AddUsage(Fluid1000, Dinner, 60, state)
	if err != nil {
		t.Fatalf("second add reaching budget exactly: %v", err)
	}
	if state.DinnerML != 160 {
		t.Errorf("dinner usage = %d, want 160", state.DinnerML)
	}
	_, err = AddUsage(Fluid1000, Dinner, 1, state)
	var ob *OverBudget
	if !errors.As(err, &ob) || ob.RemainingML != 0 {
		t.Errorf("expected over budget with 0 remaining, got %v", err)
	}
}

func TestAddUsage_NeverExceedsBudget(t *testing.T) {
	for _, tier := range FluidTiers() {
		if !tier.Restricted() {
			continue
		}
		for _, meal := range Meals() {
			state := UsageState{}
			for i := 0; i < 50; i++ {
				next, err := AddUsage(tier, meal, 35, state)
				if err == nil {
					state = next
				}
				if state.For(meal) > BudgetFor(tier).For(meal) {
					t.Fatalf("%s/%s: usage %d exceeds budget", tier, meal, state.For(meal))
				}
			}
		}
	}
}

func TestAddUsage_UnrestrictedTiers(t *testing.T) {
	for _, tier := range []FluidRestrictionTier{FluidNone, FluidAsOrdered} {
		state, err := AddUsage(tier, Lunch, 5000, UsageState{})
		if err != nil {
			t.Errorf("%s: unexpected error %v", tier, err)
		}
		if state.LunchML != 5000 {
			t.Errorf("%s: lunch usage = %d", tier, state.LunchML)
		}
		if Remaining(tier, Lunch, state) != -1 {
			t.Errorf("%s: expected unlimited remaining", tier)
		}
	}
}

func TestAddUsage_RejectsBadInput(t *testing.T) {
	if _, err := AddUsage(Fluid1500, Meal("snack"), 10, UsageState{}); err == nil {
		t.Error("expected error for unknown meal")
	}
	if _, err := AddUsage(Fluid1500, Lunch, -5, UsageState{}); err == nil {
		t.Error("expected error for negative volume")
	}
}

func TestUsageState_Reset(t *testing.T) {
	state := UsageState{BreakfastML: 100, LunchML: 50}
	state = state.Reset(Breakfast)
	if state.BreakfastML != 0 || state.LunchML != 50 {
		t.Errorf("reset = %+v", state)
	}
}

func TestParseFluidTier(t *testing.T) {
	tests := map[string]FluidRestrictionTier{
		"":              FluidNone,
		"none":          FluidNone,
		"1500ml":        Fluid1500,
		"2500ML (85oz)": Fluid2500,
		"As Ordered":    FluidAsOrdered,
		"as_ordered":    FluidAsOrdered,
	}
	for in, want := range tests {
		got, err := ParseFluidTier(in)
		if err != nil {
			t.Errorf("ParseFluidTier(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseFluidTier(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseFluidTier("900ml"); err == nil {
		t.Error("expected error for unknown tier")
	}
}

func TestBudgetFor_UnknownTierFailsClosed(t *testing.T) {
	tier := FluidRestrictionTier("900ml")
	if tier.Valid() {
		t.Fatal("900ml is not a known tier")
	}
	if !tier.Restricted() {
		t.Error("unknown tier must impose a ceiling")
	}
	if _, err := AddUsage(tier, Breakfast, 1, UsageState{}); !errors.Is(err, ErrOverBudget) {
		t.Errorf("expected ErrOverBudget for unknown tier, got %v", err)
	}
	if BudgetFor("").Unlimited != true {
		t.Error("empty tier should mean no restriction")
	}
	for _, known := range FluidTiers() {
		if !known.Valid() {
			t.Errorf("%s should be valid", known)
		}
	}
}
