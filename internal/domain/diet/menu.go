package diet

import (
	"errors"
	"fmt"
)

// ErrNotPredetermined is returned when a diet has no fixed menu.
var ErrNotPredetermined = errors.New("diet has no predetermined menu")

type menuKey struct {
	diet DietType
	meal Meal
	ada  bool
}

// Fixed protocol menus. Each ADA list mirrors the regular list position by
// position with the sugar-free or diet variant substituted.
var predeterminedMenus = map[menuKey][]Item{
	// Clear liquid
	{DietClearLiquid, Breakfast, false}: {
		{Name: "Orange Juice", Category: CategoryJuice, VolumeML: ml(120)},
		{Name: "Jello", Category: CategoryDessert},
		{Name: "Coffee", Category: CategoryDrink, VolumeML: ml(200)},
	},
	{DietClearLiquid, Breakfast, true}: {
		{Name: "Apple Juice", Category: CategoryJuice, VolumeML: ml(120)},
		{Name: "Sugar Free Jello", Category: CategoryDessert},
		{Name: "Coffee", Category: CategoryDrink, VolumeML: ml(200)},
	},
	{DietClearLiquid, Lunch, false}: {
		{Name: "Cranberry Juice", Category: CategoryJuice, VolumeML: ml(120)},
		{Name: "Chicken Broth", Category: CategorySoup, VolumeML: ml(175)},
		{Name: "Jello", Category: CategoryDessert},
		{Name: "Ginger Ale", Category: CategoryDrink, VolumeML: ml(240)},
	},
	{DietClearLiquid, Lunch, true}: {
		{Name: "Apple Juice", Category: CategoryJuice, VolumeML: ml(120)},
		{Name: "Chicken Broth", Category: CategorySoup, VolumeML: ml(175)},
		{Name: "Sugar Free Jello", Category: CategoryDessert},
		{Name: "Diet Ginger Ale", Category: CategoryDrink, VolumeML: ml(240)},
	},
	{DietClearLiquid, Dinner, false}: {
		{Name: "Grape Juice", Category: CategoryJuice, VolumeML: ml(120)},
		{Name: "Beef Broth", Category: CategorySoup, VolumeML: ml(175)},
		{Name: "Jello", Category: CategoryDessert},
		{Name: "Sprite", Category: CategoryDrink, VolumeML: ml(240)},
	},
	{DietClearLiquid, Dinner, true}: {
		{Name: "Apple Juice", Category: CategoryJuice, VolumeML: ml(120)},
		{Name: "Beef Broth", Category: CategorySoup, VolumeML: ml(175)},
		{Name: "Sugar Free Jello", Category: CategoryDessert},
		{Name: "Sprite Zero", Category: CategoryDrink, VolumeML: ml(240)},
	},

	// Full liquid
	{DietFullLiquid, Breakfast, false}: {
		{Name: "Orange Juice", Category: CategoryJuice, VolumeML: ml(120)},
		{Name: "Cream of Wheat", Category: CategoryCereal},
		{Name: "Vanilla Pudding", Category: CategoryDessert},
		{Name: "Milk", Category: CategoryDrink, VolumeML: ml(240)},
	},
	{DietFullLiquid, Breakfast, true}: {
		{Name: "Apple Juice", Category: CategoryJuice, VolumeML: ml(120)},
		{Name: "Cream of Wheat", Category: CategoryCereal},
		{Name: "Sugar Free Vanilla Pudding", Category: CategoryDessert},
		{Name: "Milk", Category: CategoryDrink, VolumeML: ml(240)},
	},
	{DietFullLiquid, Lunch, false}: {
		{Name: "Cream of Tomato Soup", Category: CategorySoup, VolumeML: ml(175)},
		{Name: "Vanilla Ice Cream", Category: CategoryDessert, VolumeML: ml(120)},
		{Name: "Jello", Category: CategoryDessert},
		{Name: "Milk", Category: CategoryDrink, VolumeML: ml(240)},
	},
	{DietFullLiquid, Lunch, true}: {
		{Name: "Cream of Tomato Soup", Category: CategorySoup, VolumeML: ml(175)},
		{Name: "Sugar Free Ice Cream", Category: CategoryDessert, VolumeML: ml(120)},
		{Name: "Sugar Free Jello", Category: CategoryDessert},
		{Name: "Milk", Category: CategoryDrink, VolumeML: ml(240)},
	},
	{DietFullLiquid, Dinner, false}: {
		{Name: "Cream of Chicken Soup", Category: CategorySoup, VolumeML: ml(175)},
		{Name: "Chocolate Pudding", Category: CategoryDessert},
		{Name: "Nutritional Shake", Category: CategorySupplement, VolumeML: ml(240)},
	},
	{DietFullLiquid, Dinner, true}: {
		{Name: "Cream of Chicken Soup", Category: CategorySoup, VolumeML: ml(175)},
		{Name: "Sugar Free Chocolate Pudding", Category: CategoryDessert},
		{Name: "Glucerna Shake", Category: CategorySupplement, VolumeML: ml(240)},
	},

	// Puree
	{DietPuree, Breakfast, false}: {
		{Name: "Pureed Scrambled Eggs", Category: CategoryEntree},
		{Name: "Oatmeal", Category: CategoryCereal},
		{Name: "Applesauce", Category: CategoryFruit},
		{Name: "Orange Juice", Category: CategoryJuice, VolumeML: ml(120)},
	},
	{DietPuree, Breakfast, true}: {
		{Name: "Pureed Scrambled Eggs", Category: CategoryEntree},
		{Name: "Oatmeal", Category: CategoryCereal},
		{Name: "Unsweetened Applesauce", Category: CategoryFruit},
		{Name: "Apple Juice", Category: CategoryJuice, VolumeML: ml(120)},
	},
	{DietPuree, Lunch, false}: {
		{Name: "Pureed Chicken", Category: CategoryEntree},
		{Name: "Mashed Potatoes", Category: CategorySide},
		{Name: "Pureed Green Beans", Category: CategorySide},
		{Name: "Chocolate Pudding", Category: CategoryDessert},
		{Name: "Milk", Category: CategoryDrink, VolumeML: ml(240)},
	},
	{DietPuree, Lunch, true}: {
		{Name: "Pureed Chicken", Category: CategoryEntree},
		{Name: "Mashed Potatoes", Category: CategorySide},
		{Name: "Pureed Green Beans", Category: CategorySide},
		{Name: "Sugar Free Chocolate Pudding", Category: CategoryDessert},
		{Name: "Milk", Category: CategoryDrink, VolumeML: ml(240)},
	},
	{DietPuree, Dinner, false}: {
		{Name: "Pureed Beef with Gravy", Category: CategoryEntree},
		{Name: "Mashed Sweet Potatoes", Category: CategorySide},
		{Name: "Pureed Carrots", Category: CategorySide},
		{Name: "Applesauce", Category: CategoryFruit},
		{Name: "Lemonade", Category: CategoryDrink, VolumeML: ml(240)},
	},
	{DietPuree, Dinner, true}: {
		{Name: "Pureed Beef with Gravy", Category: CategoryEntree},
		{Name: "Mashed Sweet Potatoes", Category: CategorySide},
		{Name: "Pureed Carrots", Category: CategorySide},
		{Name: "Unsweetened Applesauce", Category: CategoryFruit},
		{Name: "Crystal Light Lemonade", Category: CategoryDrink, VolumeML: ml(240)},
	},
}

// GenerateMenu returns the fixed, ordered item list for a predetermined diet.
// The result is a fresh copy; callers may modify it.
func GenerateMenu(dietType DietType, meal Meal, isADA bool) ([]Item, error) {
	if !dietType.Predetermined() {
		return nil, fmt.Errorf("%w: %s", ErrNotPredetermined, dietType)
	}
	items, ok := predeterminedMenus[menuKey{dietType, meal, isADA}]
	if !ok {
		return nil, fmt.Errorf("unknown meal %q", meal)
	}
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it
		if it.VolumeML != nil {
			out[i].VolumeML = ml(*it.VolumeML)
		}
	}
	return out, nil
}

// AuditMenuFluid compares a generated liquid menu against the patient's fluid
// tier. It only reports; liquid protocol volumes are never blocked. Returns
// nil when within budget, for unrestricted tiers, and for non-liquid diets.
func AuditMenuFluid(dietType DietType, tier FluidRestrictionTier, meal Meal, items []Item) *OverBudget {
	if !dietType.Liquid() || !tier.Restricted() {
		return nil
	}
	total := TotalVolume(items)
	limit := BudgetFor(tier).For(meal)
	if total <= limit {
		return nil
	}
	return &OverBudget{Meal: meal, RequestedML: total, RemainingML: limit}
}
