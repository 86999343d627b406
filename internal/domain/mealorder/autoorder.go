package mealorder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Summary reports one rollover run.
type Summary struct {
	Date           time.Time     `json:"date"`
	Created        int           `json:"created"`
	AlreadyPending int           `json:"already_pending"`
	Skipped        int           `json:"skipped"`
	Failed         int           `json:"failed"`
	Retired        int64         `json:"retired"`
	Warnings       []string      `json:"warnings,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Message renders the operator notice for a run.
func (s Summary) Message() string {
	msg := fmt.Sprintf("Auto-Order Complete: %d new orders, %d pending", s.Created, s.AlreadyPending)
	if s.Failed > 0 {
		msg += fmt.Sprintf(", %d failed", s.Failed)
	}
	return msg
}

// SummaryNotifier delivers the end-of-run notice to operators.
type SummaryNotifier interface {
	NotifySummary(ctx context.Context, s Summary) error
}

// SummaryRecorder records run outcomes, typically as metrics.
type SummaryRecorder interface {
	ObserveRollover(s Summary)
}

// AutoOrderScheduler rolls every admitted patient's order forward to a new
// day and retires orders past the retention window.
type AutoOrderScheduler struct {
	mgr      *Manager
	logger   zerolog.Logger
	notifier SummaryNotifier
	recorder SummaryRecorder
}

func NewAutoOrderScheduler(mgr *Manager, logger zerolog.Logger) *AutoOrderScheduler {
	return &AutoOrderScheduler{
		mgr:    mgr,
		logger: logger.With().Str("component", "auto-order").Logger(),
	}
}

// SetNotifier sets the end-of-run notifier. Optional.
func (s *AutoOrderScheduler) SetNotifier(n SummaryNotifier) {
	s.notifier = n
}

// SetRecorder sets the run recorder. Optional.
func (s *AutoOrderScheduler) SetRecorder(r SummaryRecorder) {
	s.recorder = r
}

// RunDaily creates today's order for every non-discharged patient whose
// latest order is from an earlier day, then runs the retirement pass. The
// latest order may already be retired, so patients survive an outage longer
// than the retention window.
//
// A failure for one patient is logged and counted and never aborts the
// batch. Cancellation is honored between patients; the patient in progress
// always finishes. Running twice for the same date creates nothing new.
func (s *AutoOrderScheduler) RunDaily(ctx context.Context, today time.Time) (Summary, error) {
	start := time.Now()
	day := Day(today)
	sum := Summary{Date: day}

	orders, err := s.mgr.repo.GetLatestPerPatient(ctx)
	if err != nil {
		return sum, &PersistenceError{Op: "load latest orders", Err: err}
	}

	for _, latest := range latestByPatient(orders) {
		if ctx.Err() != nil {
			s.logger.Warn().Err(ctx.Err()).Msg("rollover cancelled between patients")
			break
		}
		s.rollPatient(context.WithoutCancel(ctx), latest, day, &sum)
	}

	if ctx.Err() == nil {
		retired, err := s.mgr.RetireExpired(ctx, day)
		if err != nil {
			s.logger.Error().Err(err).Msg("retirement pass failed")
		}
		sum.Retired = retired
	}
	sum.Duration = time.Since(start)

	s.logger.Info().
		Time("date", day).
		Int("created", sum.Created).
		Int("already_pending", sum.AlreadyPending).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Int64("retired", sum.Retired).
		Dur("duration", sum.Duration).
		Msg(sum.Message())

	if s.recorder != nil {
		s.recorder.ObserveRollover(sum)
	}
	if s.notifier != nil {
		if err := s.notifier.NotifySummary(context.WithoutCancel(ctx), sum); err != nil {
			s.logger.Error().Err(err).Msg("failed to deliver rollover summary")
		}
	}
	return sum, ctx.Err()
}

func (s *AutoOrderScheduler) rollPatient(ctx context.Context, latest *PatientOrder, day time.Time, sum *Summary) {
	log := s.logger.With().
		Str("patient_id", latest.PatientID.String()).
		Str("patient_name", latest.PatientName).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			sum.Failed++
			log.Error().Interface("panic", r).Msg("rollover panicked for patient")
		}
	}()

	switch {
	case latest.Discharged:
		sum.Skipped++
		return
	case SameDay(latest.OrderDate, day):
		if !latest.IsFullyComplete() {
			sum.AlreadyPending++
		}
		return
	case latest.OrderDate.After(day):
		log.Warn().Time("order_date", latest.OrderDate).Msg("latest order is dated after rollover day")
		sum.Skipped++
		return
	}

	o, warnings, err := s.mgr.createFor(ctx, latest, day)
	if errors.Is(err, ErrOrderExists) {
		sum.AlreadyPending++
		return
	}
	if err != nil {
		sum.Failed++
		log.Error().Err(err).Msg("failed to create daily order")
		return
	}
	sum.Created++
	for _, w := range warnings {
		log.Warn().Str("order_id", o.ID.String()).Msg(w)
		sum.Warnings = append(sum.Warnings, fmt.Sprintf("%s: %s", latest.PatientName, w))
	}
}

// latestByPatient keeps each patient's most recent order, ordered by room
// then name so runs are reproducible.
func latestByPatient(orders []*PatientOrder) []*PatientOrder {
	latest := make(map[string]*PatientOrder, len(orders))
	for _, o := range orders {
		key := o.PatientID.String()
		if cur, ok := latest[key]; !ok || o.OrderDate.After(cur.OrderDate) {
			latest[key] = o
		}
	}
	out := make([]*PatientOrder, 0, len(latest))
	for _, o := range latest {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Room != out[j].Room {
			return out[i].Room < out[j].Room
		}
		if out[i].PatientName != out[j].PatientName {
			return out[i].PatientName < out[j].PatientName
		}
		return out[i].PatientID.String() < out[j].PatientID.String()
	})
	return out
}
