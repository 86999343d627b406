package mealorder

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/dietorders/internal/domain/diet"
)

// SlotStatus is the resolution state of one meal slot.
type SlotStatus string

const (
	SlotPending  SlotStatus = "pending"
	SlotComplete SlotStatus = "complete"
	SlotNPO      SlotStatus = "npo"
)

// Resolved reports whether the slot needs no further action.
func (s SlotStatus) Resolved() bool {
	return s == SlotComplete || s == SlotNPO
}

// LifecycleStatus is the order-level lifecycle state.
type LifecycleStatus string

const (
	StatusActive  LifecycleStatus = "active"
	StatusRetired LifecycleStatus = "retired"
)

// Progress is the derived completion of an active order.
type Progress string

const (
	ProgressPending           Progress = "pending"
	ProgressPartiallyComplete Progress = "partially-complete"
	ProgressComplete          Progress = "complete"
)

// MealSlot maps to the diet_order_meal table.
type MealSlot struct {
	Meal   diet.Meal   `db:"meal" json:"meal"`
	Items  []diet.Item `db:"items" json:"items"`
	Juices []diet.Item `db:"juices" json:"juices"`
	Drinks []diet.Item `db:"drinks" json:"drinks"`
	Status SlotStatus  `db:"status" json:"status"`
}

// AllItems returns items, juices and drinks in one list.
func (s *MealSlot) AllItems() []diet.Item {
	out := make([]diet.Item, 0, len(s.Items)+len(s.Juices)+len(s.Drinks))
	out = append(out, s.Items...)
	out = append(out, s.Juices...)
	return append(out, s.Drinks...)
}

// FluidML is the slot's selected fluid volume.
func (s *MealSlot) FluidML() int {
	return diet.TotalVolume(s.AllItems())
}

// Empty reports whether nothing is selected.
func (s *MealSlot) Empty() bool {
	return len(s.Items) == 0 && len(s.Juices) == 0 && len(s.Drinks) == 0
}

func (s *MealSlot) clear() {
	s.Items = nil
	s.Juices = nil
	s.Drinks = nil
}

// PatientOrder maps to the diet_order table. One row per patient per day.
type PatientOrder struct {
	ID          uuid.UUID                 `db:"id" json:"id"`
	PatientID   uuid.UUID                 `db:"patient_id" json:"patient_id"`
	PatientName string                    `db:"patient_name" json:"patient_name"`
	Room        string                    `db:"room" json:"room,omitempty"`
	Discharged  bool                      `db:"discharged" json:"discharged"`
	Diet        diet.DietProfile          `json:"diet"`
	Texture     diet.TextureModifications `json:"texture"`
	Fluid       diet.FluidRestrictionTier `db:"fluid_tier" json:"fluid_tier"`
	Meals       [3]MealSlot               `json:"meals"`
	OrderDate   time.Time                 `db:"order_date" json:"order_date"`
	Status      LifecycleStatus           `db:"lifecycle_status" json:"status"`
	Version     int                       `db:"version" json:"version"`
	CreatedAt   time.Time                 `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time                 `db:"updated_at" json:"updated_at"`
}

// Slot returns the slot for meal, or nil for an unknown meal.
func (o *PatientOrder) Slot(meal diet.Meal) *MealSlot {
	i := meal.Index()
	if i < 0 {
		return nil
	}
	return &o.Meals[i]
}

// IsFullyComplete is derived from the slots on every call.
func (o *PatientOrder) IsFullyComplete() bool {
	for i := range o.Meals {
		if !o.Meals[i].Status.Resolved() {
			return false
		}
	}
	return true
}

// Progress summarizes slot resolution.
func (o *PatientOrder) Progress() Progress {
	resolved := 0
	for i := range o.Meals {
		if o.Meals[i].Status.Resolved() {
			resolved++
		}
	}
	switch resolved {
	case 0:
		return ProgressPending
	case len(o.Meals):
		return ProgressComplete
	default:
		return ProgressPartiallyComplete
	}
}

// Usage is the fluid usage derived from current selections.
func (o *PatientOrder) Usage() diet.UsageState {
	return diet.UsageState{
		BreakfastML: o.Meals[0].FluidML(),
		LunchML:     o.Meals[1].FluidML(),
		DinnerML:    o.Meals[2].FluidML(),
	}
}

// Retired reports whether the order is read-only history.
func (o *PatientOrder) Retired() bool {
	return o.Status == StatusRetired
}

// Clone returns a deep copy so mutations can be discarded on failure.
func (o *PatientOrder) Clone() *PatientOrder {
	c := *o
	for i := range o.Meals {
		c.Meals[i].Items = cloneItems(o.Meals[i].Items)
		c.Meals[i].Juices = cloneItems(o.Meals[i].Juices)
		c.Meals[i].Drinks = cloneItems(o.Meals[i].Drinks)
	}
	return &c
}

func cloneItems(items []diet.Item) []diet.Item {
	if items == nil {
		return nil
	}
	out := make([]diet.Item, len(items))
	for i, it := range items {
		out[i] = it
		if it.VolumeML != nil {
			v := *it.VolumeML
			out[i].VolumeML = &v
		}
	}
	return out
}

func emptySlots() [3]MealSlot {
	var slots [3]MealSlot
	for i, meal := range diet.Meals() {
		slots[i] = MealSlot{Meal: meal, Status: SlotPending}
	}
	return slots
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
