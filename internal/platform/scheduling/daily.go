package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrInvalidClockTime = errors.New("invalid clock time, want HH:MM")
	ErrAlreadyRunning   = errors.New("trigger is already running")
)

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM" in 24-hour form.
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// NextRun returns the first occurrence of at in loc strictly after now.
// On a DST gap the normalized wall time is used.
func NextRun(now time.Time, at ClockTime, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	next := time.Date(y, m, d, at.Hour, at.Minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(y, m, d+1, at.Hour, at.Minute, 0, 0, loc)
	}
	return next
}

// Job is run by a trigger. now is the firing time in the trigger's location.
type Job func(ctx context.Context, now time.Time)

// DailyTrigger runs a job once at start and then every day at a fixed
// local time. Jobs never overlap: the next firing is computed after the
// previous run returns.
type DailyTrigger struct {
	at     ClockTime
	loc    *time.Location
	logger zerolog.Logger

	// RunOnStart fires the job immediately when Start is called.
	RunOnStart bool

	now   func() time.Time
	after func(d time.Duration) <-chan time.Time

	mu      sync.Mutex
	running bool
}

func NewDailyTrigger(at ClockTime, loc *time.Location, logger zerolog.Logger) *DailyTrigger {
	if loc == nil {
		loc = time.Local
	}
	return &DailyTrigger{
		at:         at,
		loc:        loc,
		logger:     logger.With().Str("component", "daily-trigger").Logger(),
		RunOnStart: true,
		now:        time.Now,
		after:      time.After,
	}
}

// Start blocks, running job on schedule until ctx is cancelled.
func (t *DailyTrigger) Start(ctx context.Context, job Job) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return ErrAlreadyRunning
	}
	t.running = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	if t.RunOnStart {
		t.fire(ctx, job)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		now := t.now()
		next := NextRun(now, t.at, t.loc)
		t.logger.Info().Time("next_run", next).Msg("next scheduled run")

		select {
		case <-ctx.Done():
			return nil
		case <-t.after(next.Sub(now)):
			t.fire(ctx, job)
		}
	}
}

func (t *DailyTrigger) fire(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error().Interface("panic", r).Msg("scheduled job panicked")
		}
	}()
	job(ctx, t.now().In(t.loc))
}
