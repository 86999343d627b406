package diet

import (
	"fmt"
	"strings"
)

// DietType is the patient-level diet classification.
type DietType string

const (
	DietRegular     DietType = "regular"
	DietCardiac     DietType = "cardiac"
	DietRenal       DietType = "renal"
	DietADA         DietType = "ada"
	DietClearLiquid DietType = "clear-liquid"
	DietFullLiquid  DietType = "full-liquid"
	DietPuree       DietType = "puree"
)

var dietTypes = []DietType{
	DietRegular, DietCardiac, DietRenal, DietADA,
	DietClearLiquid, DietFullLiquid, DietPuree,
}

// DietTypes returns every known diet type in display order.
func DietTypes() []DietType {
	out := make([]DietType, len(dietTypes))
	copy(out, dietTypes)
	return out
}

// ParseDietType accepts the canonical value or a display name such as
// "Clear Liquid".
func ParseDietType(s string) (DietType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "-", "_", "-").Replace(norm)
	for _, d := range dietTypes {
		if string(d) == norm {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown diet type %q", s)
}

// Predetermined reports whether the diet uses a fixed generated menu.
func (d DietType) Predetermined() bool {
	return d == DietClearLiquid || d == DietFullLiquid || d == DietPuree
}

// Liquid reports whether the diet is clear or full liquid.
func (d DietType) Liquid() bool {
	return d == DietClearLiquid || d == DietFullLiquid
}

// DietProfile is the patient-level diet classification carried from day to day.
type DietProfile struct {
	Type          DietType `json:"diet_type"`
	IsADAFriendly bool     `json:"is_ada_friendly"`
}

// ADA reports whether diabetic substitutions apply.
func (p DietProfile) ADA() bool {
	return p.IsADAFriendly || p.Type == DietADA
}

// Validate checks the profile carries a known diet type.
func (p DietProfile) Validate() error {
	if _, err := ParseDietType(string(p.Type)); err != nil {
		return err
	}
	return nil
}

// TextureModifications are physical preparation constraints.
type TextureModifications struct {
	MechanicalGround  bool `json:"mechanical_ground"`
	MechanicalChopped bool `json:"mechanical_chopped"`
	BiteSize          bool `json:"bite_size"`
	BreadOK           bool `json:"bread_ok"`
	ExtraGravy        bool `json:"extra_gravy"`
	MeatsOnly         bool `json:"meats_only"`
	NectarThick       bool `json:"nectar_thick"`
	HoneyThick        bool `json:"honey_thick"`
	PuddingThick      bool `json:"pudding_thick"`
}

// RestrictsBread reports whether bread-equivalent items are disallowed.
func (m TextureModifications) RestrictsBread() bool {
	return (m.MechanicalGround || m.MechanicalChopped) && !m.BreadOK
}

// Labels returns the names of the set flags, in a stable order.
func (m TextureModifications) Labels() []string {
	var out []string
	flags := []struct {
		on    bool
		label string
	}{
		{m.MechanicalGround, "mechanical ground"},
		{m.MechanicalChopped, "mechanical chopped"},
		{m.BiteSize, "bite size"},
		{m.BreadOK, "bread ok"},
		{m.ExtraGravy, "extra gravy"},
		{m.MeatsOnly, "meats only"},
		{m.NectarThick, "nectar thick"},
		{m.HoneyThick, "honey thick"},
		{m.PuddingThick, "pudding thick"},
	}
	for _, f := range flags {
		if f.on {
			out = append(out, f.label)
		}
	}
	return out
}

// Meal identifies one of the three daily meal slots.
type Meal string

const (
	Breakfast Meal = "breakfast"
	Lunch     Meal = "lunch"
	Dinner    Meal = "dinner"
)

// Meals returns the three meals in serving order.
func Meals() []Meal {
	return []Meal{Breakfast, Lunch, Dinner}
}

// ParseMeal parses a meal name case-insensitively.
func ParseMeal(s string) (Meal, error) {
	switch Meal(strings.ToLower(strings.TrimSpace(s))) {
	case Breakfast:
		return Breakfast, nil
	case Lunch:
		return Lunch, nil
	case Dinner:
		return Dinner, nil
	}
	return "", fmt.Errorf("unknown meal %q", s)
}

// Index returns the meal's position in serving order, or -1.
func (m Meal) Index() int {
	switch m {
	case Breakfast:
		return 0
	case Lunch:
		return 1
	case Dinner:
		return 2
	}
	return -1
}

// Item categories. Bread and Muffin are bread-equivalent.
const (
	CategoryBread      = "Bread"
	CategoryMuffin     = "Muffin"
	CategoryEntree     = "Entree"
	CategorySide       = "Side"
	CategoryCereal     = "Cereal"
	CategoryFruit      = "Fruit"
	CategorySoup       = "Soup"
	CategoryDessert    = "Dessert"
	CategoryJuice      = "Juice"
	CategoryDrink      = "Drink"
	CategorySupplement = "Supplement"
	CategoryCondiment  = "Condiment"
)

// Item is a single selectable menu item. VolumeML is set only for
// fluid-bearing items.
type Item struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	VolumeML *int   `json:"volume_ml,omitempty"`
}

// Volume returns the item's fluid volume, zero when it carries none.
func (i Item) Volume() int {
	if i.VolumeML == nil {
		return 0
	}
	return *i.VolumeML
}

// BreadEquivalent reports whether the item counts as bread for texture rules.
func (i Item) BreadEquivalent() bool {
	return strings.EqualFold(i.Category, CategoryBread) || strings.EqualFold(i.Category, CategoryMuffin)
}

// String renders the item as "Name (120ml)" or "Name".
func (i Item) String() string {
	if i.VolumeML == nil {
		return i.Name
	}
	return fmt.Sprintf("%s (%dml)", i.Name, *i.VolumeML)
}

// TotalVolume sums the fluid volume of items.
func TotalVolume(items []Item) int {
	total := 0
	for _, it := range items {
		total += it.Volume()
	}
	return total
}

func ml(v int) *int { return &v }
