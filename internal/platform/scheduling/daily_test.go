package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseClockTime(t *testing.T) {
	c, err := ParseClockTime("04:00")
	if err != nil {
		t.Fatalf("ParseClockTime: %v", err)
	}
	if c.Hour != 4 || c.Minute != 0 || c.String() != "04:00" {
		t.Errorf("got %+v", c)
	}

	for _, bad := range []string{"", "4am", "25:00", "12:61"} {
		if _, err := ParseClockTime(bad); !errors.Is(err, ErrInvalidClockTime) {
			t.Errorf("ParseClockTime(%q): expected ErrInvalidClockTime, got %v", bad, err)
		}
	}
}

func TestNextRun(t *testing.T) {
	loc := time.UTC
	at := ClockTime{Hour: 4}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before today's run", time.Date(2024, 3, 14, 3, 59, 0, 0, loc), time.Date(2024, 3, 14, 4, 0, 0, 0, loc)},
		{"exactly at run", time.Date(2024, 3, 14, 4, 0, 0, 0, loc), time.Date(2024, 3, 15, 4, 0, 0, 0, loc)},
		{"after today's run", time.Date(2024, 3, 14, 9, 30, 0, 0, loc), time.Date(2024, 3, 15, 4, 0, 0, 0, loc)},
		{"month boundary", time.Date(2024, 3, 31, 23, 0, 0, 0, loc), time.Date(2024, 4, 1, 4, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextRun(tt.now, at, loc); !got.Equal(tt.want) {
				t.Errorf("NextRun = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextRun_UsesLocation(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	now := time.Date(2024, 3, 14, 8, 0, 0, 0, time.UTC) // 03:00 EST
	got := NextRun(now, ClockTime{Hour: 4}, est)
	want := time.Date(2024, 3, 14, 4, 0, 0, 0, est)
	if !got.Equal(want) {
		t.Errorf("NextRun = %v, want %v", got, want)
	}
}

// fakeClock hands out timer channels the test fires by hand.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waits   []time.Duration
	pending chan chan time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, pending: make(chan chan time.Time, 4)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	c.pending <- ch
	return ch
}

func TestDailyTrigger_RunsOnStartAndDaily(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC))
	trig := NewDailyTrigger(ClockTime{Hour: 4}, time.UTC, zerolog.Nop())
	trig.now = clock.Now
	trig.after = clock.After

	runs := make(chan time.Time, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- trig.Start(ctx, func(_ context.Context, now time.Time) { runs <- now })
	}()

	first := <-runs
	if first.Hour() != 9 {
		t.Errorf("expected immediate run at 09:00, got %v", first)
	}

	timer := <-clock.pending
	timer <- clock.Now()
	second := <-runs
	if second.Day() != 15 || second.Hour() != 4 {
		t.Errorf("expected run at 2024-03-15 04:00, got %v", second)
	}

	<-clock.pending
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start returned %v", err)
	}

	clock.mu.Lock()
	defer clock.mu.Unlock()
	if clock.waits[0] != 19*time.Hour {
		t.Errorf("expected first wait of 19h, got %v", clock.waits[0])
	}
	if clock.waits[1] != 24*time.Hour {
		t.Errorf("expected second wait of 24h, got %v", clock.waits[1])
	}
}

func TestDailyTrigger_RecoversPanic(t *testing.T) {
	trig := NewDailyTrigger(ClockTime{Hour: 4}, time.UTC, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	trig.after = func(time.Duration) <-chan time.Time {
		cancel()
		return make(chan time.Time)
	}

	err := trig.Start(ctx, func(context.Context, time.Time) { panic("boom") })
	if err != nil {
		t.Errorf("Start returned %v", err)
	}
}

func TestDailyTrigger_AlreadyRunning(t *testing.T) {
	trig := NewDailyTrigger(ClockTime{Hour: 4}, time.UTC, zerolog.Nop())
	trig.RunOnStart = false

	blocked := make(chan struct{})
	trig.after = func(time.Duration) <-chan time.Time {
		close(blocked)
		return make(chan time.Time)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- trig.Start(ctx, func(context.Context, time.Time) {}) }()
	<-blocked

	if err := trig.Start(ctx, func(context.Context, time.Time) {}); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
	cancel()
	<-done
}
