package diet

import (
	"errors"
	"reflect"
	"testing"
)

func TestGenerateMenu_Totality(t *testing.T) {
	for _, d := range []DietType{DietClearLiquid, DietFullLiquid, DietPuree} {
		for _, meal := range Meals() {
			for _, ada := range []bool{false, true} {
				first, err := GenerateMenu(d, meal, ada)
				if err != nil {
					t.Fatalf("%s/%s/ada=%v: %v", d, meal, ada, err)
				}
				if len(first) == 0 {
					t.Errorf("%s/%s/ada=%v: empty menu", d, meal, ada)
				}
				second, _ := GenerateMenu(d, meal, ada)
				if !reflect.DeepEqual(first, second) {
					t.Errorf("%s/%s/ada=%v: menu not deterministic", d, meal, ada)
				}
			}
		}
	}
}

func TestGenerateMenu_ClearLiquidADABreakfast(t *testing.T) {
	items, err := GenerateMenu(DietClearLiquid, Breakfast, true)
	if err != nil {
		t.Fatal(err)
	}
	byName := map[string]Item{}
	for _, it := range items {
		byName[it.Name] = it
	}

	apple, ok := byName["Apple Juice"]
	if !ok || apple.VolumeML == nil || *apple.VolumeML != 120 {
		t.Errorf("expected Apple Juice (120ml), got %+v", apple)
	}
	jello, ok := byName["Sugar Free Jello"]
	if !ok || jello.VolumeML != nil {
		t.Errorf("expected Sugar Free Jello with no volume, got %+v", jello)
	}
	for _, banned := range []string{"Orange Juice", "Jello"} {
		if _, ok := byName[banned]; ok {
			t.Errorf("ADA menu must not include %s", banned)
		}
	}
}

func TestGenerateMenu_ADASubstitutesSodas(t *testing.T) {
	lunch, _ := GenerateMenu(DietClearLiquid, Lunch, true)
	dinner, _ := GenerateMenu(DietClearLiquid, Dinner, true)
	if !containsItem(lunch, "Diet Ginger Ale") || containsItem(lunch, "Ginger Ale") {
		t.Errorf("lunch ADA drinks wrong: %v", lunch)
	}
	if !containsItem(dinner, "Sprite Zero") || containsItem(dinner, "Sprite") {
		t.Errorf("dinner ADA drinks wrong: %v", dinner)
	}
}

func TestGenerateMenu_NoBreadItems(t *testing.T) {
	for _, d := range []DietType{DietClearLiquid, DietFullLiquid, DietPuree} {
		for _, meal := range Meals() {
			for _, ada := range []bool{false, true} {
				items, _ := GenerateMenu(d, meal, ada)
				for _, it := range items {
					if it.BreadEquivalent() {
						t.Errorf("%s/%s: bread-equivalent item %s", d, meal, it.Name)
					}
				}
			}
		}
	}
}

func TestGenerateMenu_ReturnsCopy(t *testing.T) {
	items, _ := GenerateMenu(DietFullLiquid, Lunch, false)
	items[0].Name = "changed"
	*items[0].VolumeML = 1
	again, _ := GenerateMenu(DietFullLiquid, Lunch, false)
	if again[0].Name == "changed" || *again[0].VolumeML == 1 {
		t.Error("GenerateMenu leaked its internal table")
	}
}

func TestGenerateMenu_RejectsOtherDiets(t *testing.T) {
	for _, d := range []DietType{DietRegular, DietCardiac, DietRenal, DietADA} {
		_, err := GenerateMenu(d, Lunch, false)
		if !errors.Is(err, ErrNotPredetermined) {
			t.Errorf("%s: expected ErrNotPredetermined, got %v", d, err)
		}
	}
}

func TestAuditMenuFluid(t *testing.T) {
	lunch, _ := GenerateMenu(DietClearLiquid, Lunch, false)
	ob := AuditMenuFluid(DietClearLiquid, Fluid1000, Lunch, lunch)
	if ob == nil {
		t.Fatal("expected audit finding for 535ml lunch against 120ml budget")
	}
	if ob.RequestedML != TotalVolume(lunch) || ob.RemainingML != 120 {
		t.Errorf("audit = %+v", ob)
	}
	if AuditMenuFluid(DietClearLiquid, FluidNone, Lunch, lunch) != nil {
		t.Error("unrestricted tier should not audit")
	}
	puree, _ := GenerateMenu(DietPuree, Lunch, false)
	if AuditMenuFluid(DietPuree, Fluid1000, Lunch, puree) != nil {
		t.Error("puree diets are not audited")
	}
}

func containsItem(items []Item, name string) bool {
	for _, it := range items {
		if it.Name == name {
			return true
		}
	}
	return false
}
