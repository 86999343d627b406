package mealorder

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the durable store of patient diet orders. It is the only
// writer of order state.
//
// Update inserts when order.Version is zero and otherwise replaces the row
// whose version matches, bumping Version on success. It reports false when
// nothing was written: a row for the same patient and date already exists
// (insert) or the version no longer matches (update).
//
// GetLatestPerPatient returns each patient's most recent order whatever its
// lifecycle status, so patients whose orders were all retired are still
// found.
type Repository interface {
	GetAllActive(ctx context.Context) ([]*PatientOrder, error)
	GetLatestPerPatient(ctx context.Context) ([]*PatientOrder, error)
	GetByID(ctx context.Context, id uuid.UUID) (*PatientOrder, error)
	Update(ctx context.Context, o *PatientOrder) (bool, error)
	ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
	GetByDateRange(ctx context.Context, from, to time.Time) ([]*PatientOrder, error)
}
