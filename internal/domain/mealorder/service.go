package mealorder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/dietorders/internal/domain/diet"
)

// DefaultRetentionDays is how long an order stays active after its date.
const DefaultRetentionDays = 6

// Options configures a Manager.
type Options struct {
	RetentionDays int
	// Now is the clock used for "today" and timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Manager owns the per-patient, per-day order state machine. It holds no
// order state of its own; every operation loads from and writes to the
// repository.
type Manager struct {
	repo          Repository
	logger        zerolog.Logger
	retentionDays int
	now           func() time.Time
}

func NewManager(repo Repository, logger zerolog.Logger, opts Options) *Manager {
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = DefaultRetentionDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		repo:          repo,
		logger:        logger.With().Str("component", "diet-order-manager").Logger(),
		retentionDays: opts.RetentionDays,
		now:           opts.Now,
	}
}

// RetentionDays returns the configured active window.
func (m *Manager) RetentionDays() int { return m.retentionDays }

// Today returns the manager's current calendar date.
func (m *Manager) Today() time.Time { return Day(m.now()) }

// -- Creation --

// AdmitRequest describes the first diet order of a newly admitted patient.
type AdmitRequest struct {
	PatientID   uuid.UUID
	PatientName string
	Room        string
	Diet        diet.DietProfile
	Texture     diet.TextureModifications
	Fluid       diet.FluidRestrictionTier
	// Date defaults to today.
	Date time.Time
}

// Validate checks required fields.
func (r *AdmitRequest) Validate() error {
	if strings.TrimSpace(r.PatientName) == "" {
		return ErrMissingPatientName
	}
	if err := r.Diet.Validate(); err != nil {
		return err
	}
	if r.Fluid == "" {
		r.Fluid = diet.FluidNone
	}
	if _, err := diet.ParseFluidTier(string(r.Fluid)); err != nil {
		return err
	}
	return nil
}

// Admit creates a patient's first order. A new patient ID is assigned when
// none is given.
func (m *Manager) Admit(ctx context.Context, req AdmitRequest) (*PatientOrder, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.PatientID == uuid.Nil {
		req.PatientID = uuid.New()
	}
	day := Day(req.Date)
	if req.Date.IsZero() {
		day = m.Today()
	}

	seed := &PatientOrder{
		PatientID:   req.PatientID,
		PatientName: strings.TrimSpace(req.PatientName),
		Room:        strings.TrimSpace(req.Room),
		Diet:        req.Diet,
		Texture:     req.Texture,
		Fluid:       req.Fluid,
	}
	o, warnings, err := m.createFor(ctx, seed, day)
	if err != nil {
		return nil, err
	}
	m.logWarnings(o, warnings)
	m.logger.Info().
		Str("order_id", o.ID.String()).
		Str("patient_id", o.PatientID.String()).
		Str("diet", string(o.Diet.Type)).
		Msg("patient admitted")
	return o, nil
}

// OpenOrder returns the patient's order for day, creating it from the most
// recent earlier order when none exists yet. When every earlier order has
// already been retired, the latest retired one is used. A discharged
// patient is not reopened; Admit them again instead.
func (m *Manager) OpenOrder(ctx context.Context, patientID uuid.UUID, day time.Time) (*PatientOrder, error) {
	if patientID == uuid.Nil {
		return nil, ErrMissingPatientID
	}
	day = Day(day)
	orders, err := m.repo.GetAllActive(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "load active orders", Err: err}
	}

	var prev *PatientOrder
	for _, o := range orders {
		if o.PatientID != patientID {
			continue
		}
		if SameDay(o.OrderDate, day) {
			return o, nil
		}
		if o.OrderDate.Before(day) && (prev == nil || o.OrderDate.After(prev.OrderDate)) {
			prev = o
		}
	}
	if prev == nil {
		if prev, err = m.latestRecorded(ctx, patientID, day); err != nil {
			return nil, err
		}
	}
	if prev.Discharged {
		return nil, ErrPatientDischarged
	}

	o, warnings, err := m.createFor(ctx, prev, day)
	if errors.Is(err, ErrOrderExists) {
		return m.findForDay(ctx, patientID, day)
	}
	if err != nil {
		return nil, err
	}
	m.logWarnings(o, warnings)
	return o, nil
}

// latestRecorded finds the patient's latest order of any status dated
// before day.
func (m *Manager) latestRecorded(ctx context.Context, patientID uuid.UUID, day time.Time) (*PatientOrder, error) {
	latest, err := m.repo.GetLatestPerPatient(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "load latest orders", Err: err}
	}
	for _, o := range latest {
		if o.PatientID != patientID {
			continue
		}
		if SameDay(o.OrderDate, day) {
			// Already there, possibly retired; let createFor report the clash.
			return o, nil
		}
		if o.OrderDate.Before(day) {
			return o, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Manager) findForDay(ctx context.Context, patientID uuid.UUID, day time.Time) (*PatientOrder, error) {
	orders, err := m.repo.GetByDateRange(ctx, day, day)
	if err != nil {
		return nil, &PersistenceError{Op: "load orders by date", Err: err}
	}
	for _, o := range orders {
		if o.PatientID == patientID {
			return o, nil
		}
	}
	return nil, ErrNotFound
}

// createFor builds and persists the order for day from prev. Diet, texture,
// fluid tier and patient identity carry forward; meal selections and slot
// statuses do not. Predetermined diets are then filled by the menu generator.
func (m *Manager) createFor(ctx context.Context, prev *PatientOrder, day time.Time) (*PatientOrder, []string, error) {
	now := m.now()
	o := &PatientOrder{
		ID:          uuid.New(),
		PatientID:   prev.PatientID,
		PatientName: prev.PatientName,
		Room:        prev.Room,
		Diet:        prev.Diet,
		Texture:     prev.Texture,
		Fluid:       prev.Fluid,
		Meals:       emptySlots(),
		OrderDate:   Day(day),
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if o.Fluid == "" {
		o.Fluid = diet.FluidNone
	}

	warnings, err := fillPredetermined(o)
	if err != nil {
		return nil, nil, err
	}
	warnings = append(warnings, dropTextureConflicts(o)...)

	ok, err := m.repo.Update(ctx, o)
	if err != nil {
		return nil, nil, &PersistenceError{Op: "create order", Err: err}
	}
	if !ok {
		return nil, nil, ErrOrderExists
	}
	return o, warnings, nil
}

// -- Meal edits --

// Selection is a proposed meal-slot content.
type Selection struct {
	Items  []diet.Item `json:"items"`
	Juices []diet.Item `json:"juices"`
	Drinks []diet.Item `json:"drinks"`
}

func (s Selection) all() []diet.Item {
	out := make([]diet.Item, 0, len(s.Items)+len(s.Juices)+len(s.Drinks))
	out = append(out, s.Items...)
	out = append(out, s.Juices...)
	return append(out, s.Drinks...)
}

// EditOptions relaxes advisory checks for an edit.
type EditOptions struct {
	// OverrideFluid accepts a selection over the meal's fluid budget.
	OverrideFluid bool
}

// SetMealItems validates and stores a meal selection, completing the slot.
// An empty selection returns the slot to pending.
func (m *Manager) SetMealItems(ctx context.Context, id uuid.UUID, meal diet.Meal, sel Selection, opts EditOptions) (*PatientOrder, error) {
	return m.mutate(ctx, id, "set meal items", func(o *PatientOrder) error {
		slot := o.Slot(meal)
		if slot == nil {
			return fmt.Errorf("%w: %q", ErrUnknownMeal, meal)
		}

		all := sel.all()
		if res := diet.ValidateTexture(o.Texture, all); !res.OK() {
			return &ValidationError{Meal: meal, Conflict: res.Conflict}
		}

		usage := o.Usage().Reset(meal)
		if _, err := diet.AddUsage(o.Fluid, meal, diet.TotalVolume(all), usage); err != nil {
			var ob *diet.OverBudget
			if !errors.As(err, &ob) {
				return err
			}
			if !opts.OverrideFluid {
				return &ValidationError{Meal: meal, OverBudget: ob}
			}
			m.logger.Warn().
				Str("order_id", o.ID.String()).
				Str("meal", string(meal)).
				Int("requested_ml", ob.RequestedML).
				Int("remaining_ml", ob.RemainingML).
				Msg("fluid budget overridden")
		}

		slot.Items = cloneItems(sel.Items)
		slot.Juices = cloneItems(sel.Juices)
		slot.Drinks = cloneItems(sel.Drinks)
		if slot.Empty() {
			slot.Status = SlotPending
		} else {
			slot.Status = SlotComplete
		}
		return nil
	})
}

// SetMealNPO sets or lifts nothing-by-mouth for a meal. Setting NPO clears
// the slot's items; lifting it leaves the slot pending.
func (m *Manager) SetMealNPO(ctx context.Context, id uuid.UUID, meal diet.Meal, npo bool) (*PatientOrder, error) {
	return m.mutate(ctx, id, "set meal npo", func(o *PatientOrder) error {
		slot := o.Slot(meal)
		if slot == nil {
			return fmt.Errorf("%w: %q", ErrUnknownMeal, meal)
		}
		if npo {
			slot.clear()
			slot.Status = SlotNPO
			return nil
		}
		if slot.Status == SlotNPO {
			slot.Status = SlotPending
		}
		return nil
	})
}

// MarkMealComplete resolves a slot with its current selection. A slot marked
// NPO loses that flag.
func (m *Manager) MarkMealComplete(ctx context.Context, id uuid.UUID, meal diet.Meal) (*PatientOrder, error) {
	return m.mutate(ctx, id, "mark meal complete", func(o *PatientOrder) error {
		slot := o.Slot(meal)
		if slot == nil {
			return fmt.Errorf("%w: %q", ErrUnknownMeal, meal)
		}
		slot.Status = SlotComplete
		return nil
	})
}

// ClearMeal empties a slot and returns it to pending.
func (m *Manager) ClearMeal(ctx context.Context, id uuid.UUID, meal diet.Meal) (*PatientOrder, error) {
	return m.mutate(ctx, id, "clear meal", func(o *PatientOrder) error {
		slot := o.Slot(meal)
		if slot == nil {
			return fmt.Errorf("%w: %q", ErrUnknownMeal, meal)
		}
		slot.clear()
		slot.Status = SlotPending
		return nil
	})
}

// ApplyPredeterminedMenu regenerates the fixed menu into every non-NPO slot.
func (m *Manager) ApplyPredeterminedMenu(ctx context.Context, id uuid.UUID) (*PatientOrder, error) {
	var warnings []string
	o, err := m.mutate(ctx, id, "apply predetermined menu", func(o *PatientOrder) error {
		if !o.Diet.Type.Predetermined() {
			return fmt.Errorf("%w: %s", diet.ErrNotPredetermined, o.Diet.Type)
		}
		w, err := fillPredetermined(o)
		warnings = w
		return err
	})
	if err != nil {
		return nil, err
	}
	m.logWarnings(o, warnings)
	return o, nil
}

// DietChange updates patient-level diet settings on an active order. Nil
// fields are left unchanged.
type DietChange struct {
	Diet    *diet.DietProfile
	Texture *diet.TextureModifications
	Fluid   *diet.FluidRestrictionTier
	// DropConflicts removes newly disallowed bread items instead of failing.
	DropConflicts bool
	// OverrideFluid keeps selections that exceed a tighter fluid tier.
	OverrideFluid bool
}

// UpdateDiet applies a DietChange and re-validates existing selections. A
// change of diet type resets non-NPO slots, regenerating the fixed menu for
// predetermined diets.
func (m *Manager) UpdateDiet(ctx context.Context, id uuid.UUID, change DietChange) (*PatientOrder, error) {
	var warnings []string
	o, err := m.mutate(ctx, id, "update diet", func(o *PatientOrder) error {
		typeChanged := false
		if change.Diet != nil {
			if err := change.Diet.Validate(); err != nil {
				return err
			}
			typeChanged = change.Diet.Type != o.Diet.Type || change.Diet.ADA() != o.Diet.ADA()
			o.Diet = *change.Diet
		}
		if change.Texture != nil {
			o.Texture = *change.Texture
		}
		if change.Fluid != nil {
			tier, err := diet.ParseFluidTier(string(*change.Fluid))
			if err != nil {
				return err
			}
			o.Fluid = tier
		}

		if typeChanged {
			for i := range o.Meals {
				if o.Meals[i].Status != SlotNPO {
					o.Meals[i].clear()
					o.Meals[i].Status = SlotPending
				}
			}
			w, err := fillPredetermined(o)
			if err != nil {
				return err
			}
			warnings = append(warnings, w...)
		}

		for i := range o.Meals {
			slot := &o.Meals[i]
			res := diet.ValidateTexture(o.Texture, slot.AllItems())
			if !res.OK() && !change.DropConflicts {
				return &ValidationError{Meal: slot.Meal, Conflict: res.Conflict}
			}
		}
		warnings = append(warnings, dropTextureConflicts(o)...)

		if o.Diet.Type.Predetermined() {
			return nil
		}
		for i := range o.Meals {
			slot := &o.Meals[i]
			_, err := diet.AddUsage(o.Fluid, slot.Meal, slot.FluidML(), diet.UsageState{})
			var ob *diet.OverBudget
			if errors.As(err, &ob) && !change.OverrideFluid {
				return &ValidationError{Meal: slot.Meal, OverBudget: ob}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logWarnings(o, warnings)
	return o, nil
}

// Discharge flags the patient so the nightly rollover stops creating orders.
func (m *Manager) Discharge(ctx context.Context, id uuid.UUID) (*PatientOrder, error) {
	return m.mutate(ctx, id, "discharge", func(o *PatientOrder) error {
		o.Discharged = true
		return nil
	})
}

// mutate applies fn to a copy of the stored order and persists it. On any
// failure the copy is dropped and the stored state is left as it was.
func (m *Manager) mutate(ctx context.Context, id uuid.UUID, op string, fn func(o *PatientOrder) error) (*PatientOrder, error) {
	current, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Retired() {
		return nil, ErrOrderRetired
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = m.now()

	ok, err := m.repo.Update(ctx, next)
	if err != nil {
		return nil, &PersistenceError{Op: op, Err: err}
	}
	if !ok {
		return nil, &PersistenceError{Op: op, Err: ErrStaleOrder}
	}
	return next, nil
}

// -- Reads --

// Get loads one order.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*PatientOrder, error) {
	o, err := m.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load order", Err: err}
	}
	if o == nil {
		return nil, ErrNotFound
	}
	return o, nil
}

// History returns orders of any status dated within [from, to].
func (m *Manager) History(ctx context.Context, from, to time.Time) ([]*PatientOrder, error) {
	orders, err := m.repo.GetByDateRange(ctx, Day(from), Day(to))
	if err != nil {
		return nil, &PersistenceError{Op: "load history", Err: err}
	}
	sortOrders(orders)
	return orders, nil
}

// ListActive runs the retirement pass and returns the remaining active
// orders. A failed retirement pass is logged and does not block the listing.
func (m *Manager) ListActive(ctx context.Context, today time.Time) ([]*PatientOrder, error) {
	if _, err := m.RetireExpired(ctx, today); err != nil {
		m.logger.Warn().Err(err).Msg("opportunistic retirement failed")
	}
	orders, err := m.repo.GetAllActive(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "load active orders", Err: err}
	}
	sortOrders(orders)
	return orders, nil
}

// -- Retirement --

// RetirementCutoff is the earliest order date that stays active on today.
func (m *Manager) RetirementCutoff(today time.Time) time.Time {
	return Day(today).AddDate(0, 0, -m.retentionDays)
}

// RetireExpired moves active orders dated before today minus the retention
// window to retired. Retired orders are never touched again, so repeating
// the pass is a no-op.
func (m *Manager) RetireExpired(ctx context.Context, today time.Time) (int64, error) {
	cutoff := m.RetirementCutoff(today)
	n, err := m.repo.ArchiveBefore(ctx, cutoff)
	if err != nil {
		return 0, &PersistenceError{Op: "retire orders", Err: err}
	}
	if n > 0 {
		m.logger.Info().
			Int64("retired", n).
			Time("cutoff", cutoff).
			Msg("retired expired diet orders")
	}
	return n, nil
}

// -- helpers --

// fillPredetermined places the generated menu into every non-NPO slot and
// completes it. Liquid menus over a restricted fluid tier produce audit
// warnings only.
func fillPredetermined(o *PatientOrder) ([]string, error) {
	if !o.Diet.Type.Predetermined() {
		return nil, nil
	}
	var warnings []string
	for i := range o.Meals {
		slot := &o.Meals[i]
		if slot.Status == SlotNPO {
			slot.clear()
			continue
		}
		items, err := diet.GenerateMenu(o.Diet.Type, slot.Meal, o.Diet.ADA())
		if err != nil {
			return nil, err
		}
		slot.clear()
		for _, it := range items {
			switch it.Category {
			case diet.CategoryJuice:
				slot.Juices = append(slot.Juices, it)
			case diet.CategoryDrink, diet.CategorySupplement:
				slot.Drinks = append(slot.Drinks, it)
			default:
				slot.Items = append(slot.Items, it)
			}
		}
		slot.Status = SlotComplete

		if ob := diet.AuditMenuFluid(o.Diet.Type, o.Fluid, slot.Meal, items); ob != nil {
			warnings = append(warnings, fmt.Sprintf("%s menu totals %dml against %s budget of %dml",
				slot.Meal, ob.RequestedML, o.Fluid.Label(), ob.RemainingML))
		}
	}
	return warnings, nil
}

// dropTextureConflicts removes disallowed bread items from every slot, the
// policy for automated edits. A completed slot left empty returns to pending.
func dropTextureConflicts(o *PatientOrder) []string {
	var warnings []string
	for i := range o.Meals {
		slot := &o.Meals[i]
		var dropped []diet.Item
		var d []diet.Item
		slot.Items, d = dropFrom(o.Texture, slot.Items)
		dropped = append(dropped, d...)
		slot.Juices, d = dropFrom(o.Texture, slot.Juices)
		dropped = append(dropped, d...)
		slot.Drinks, d = dropFrom(o.Texture, slot.Drinks)
		dropped = append(dropped, d...)
		if len(dropped) == 0 {
			continue
		}
		if slot.Empty() && slot.Status == SlotComplete {
			slot.Status = SlotPending
		}
		names := make([]string, len(dropped))
		for j, it := range dropped {
			names[j] = it.Name
		}
		warnings = append(warnings, fmt.Sprintf("%s: dropped %s (texture restriction)",
			slot.Meal, strings.Join(names, ", ")))
	}
	return warnings
}

func dropFrom(mods diet.TextureModifications, items []diet.Item) ([]diet.Item, []diet.Item) {
	if len(items) == 0 {
		return items, nil
	}
	return diet.DropConflicts(mods, items)
}

func (m *Manager) logWarnings(o *PatientOrder, warnings []string) {
	for _, w := range warnings {
		m.logger.Warn().
			Str("order_id", o.ID.String()).
			Str("patient_id", o.PatientID.String()).
			Msg(w)
	}
}

func sortOrders(orders []*PatientOrder) {
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		if !a.OrderDate.Equal(b.OrderDate) {
			return a.OrderDate.After(b.OrderDate)
		}
		if a.Room != b.Room {
			return a.Room < b.Room
		}
		return a.PatientName < b.PatientName
	})
}
