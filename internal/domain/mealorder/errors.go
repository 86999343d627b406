package mealorder

import (
	"errors"
	"fmt"

	"github.com/ehr/dietorders/internal/domain/diet"
)

// Common errors returned by the lifecycle manager.
var (
	ErrNotFound           = errors.New("diet order not found")
	ErrOrderRetired       = errors.New("diet order is retired and read-only")
	ErrStaleOrder         = errors.New("diet order was modified concurrently")
	ErrOrderExists        = errors.New("diet order already exists for this date")
	ErrMissingPatientID   = errors.New("patient_id is required")
	ErrMissingPatientName = errors.New("patient_name is required")
	ErrUnknownMeal        = errors.New("unknown meal")
	ErrPatientDischarged  = errors.New("patient is discharged; admit again to resume orders")
)

// ValidationError blocks a meal edit. It is never persisted.
type ValidationError struct {
	Meal       diet.Meal
	Conflict   *diet.TextureConflict
	OverBudget *diet.OverBudget
}

func (e *ValidationError) Error() string {
	switch {
	case e.Conflict != nil:
		return fmt.Sprintf("%s: %v", e.Meal, e.Conflict)
	case e.OverBudget != nil:
		return e.OverBudget.Error()
	default:
		return fmt.Sprintf("%s: invalid selection", e.Meal)
	}
}

func (e *ValidationError) Unwrap() error {
	if e.Conflict != nil {
		return e.Conflict
	}
	if e.OverBudget != nil {
		return e.OverBudget
	}
	return nil
}

// PersistenceError wraps a repository failure. The in-memory change that
// triggered it has been discarded.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
