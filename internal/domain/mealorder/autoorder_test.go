package mealorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/dietorders/internal/domain/diet"
)

type recordingNotifier struct {
	summaries []Summary
	err       error
}

func (n *recordingNotifier) NotifySummary(_ context.Context, s Summary) error {
	n.summaries = append(n.summaries, s)
	return n.err
}

type recordingRecorder struct {
	summaries []Summary
}

func (r *recordingRecorder) ObserveRollover(s Summary) {
	r.summaries = append(r.summaries, s)
}

func newTestScheduler(repo *mockOrderRepo) (*AutoOrderScheduler, *Manager) {
	m := newTestManager(repo)
	return NewAutoOrderScheduler(m, zerolog.Nop()), m
}

func completeAll(t *testing.T, m *Manager, o *PatientOrder) *PatientOrder {
	t.Helper()
	var err error
	for _, meal := range diet.Meals() {
		o, err = m.MarkMealComplete(context.Background(), o.ID, meal)
		if err != nil {
			t.Fatalf("MarkMealComplete(%s): %v", meal, err)
		}
	}
	return o
}

func TestRunDaily_CreatesNextDay(t *testing.T) {
	repo := newMockOrderRepo()
	s, m := newTestScheduler(repo)
	ctx := context.Background()

	yesterday := testDay.AddDate(0, 0, -1)
	prev, err := m.Admit(ctx, AdmitRequest{
		PatientName: "Jane Doe",
		Room:        "204B",
		Diet:        diet.DietProfile{Type: diet.DietRegular, IsADAFriendly: true},
		Texture:     diet.TextureModifications{BiteSize: true},
		Fluid:       diet.Fluid1500,
		Date:        yesterday,
	})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	prev = completeAll(t, m, prev)

	sum, err := s.RunDaily(ctx, testDay)
	if err != nil {
		t.Fatalf("RunDaily: %v", err)
	}
	if sum.Created != 1 || sum.AlreadyPending != 0 || sum.Failed != 0 {
		t.Errorf("unexpected summary %+v", sum)
	}

	today, err := m.OpenOrder(ctx, prev.PatientID, testDay)
	if err != nil {
		t.Fatalf("OpenOrder: %v", err)
	}
	if today.ID == prev.ID {
		t.Fatal("expected a new order row")
	}
	if today.Diet != prev.Diet || today.Texture != prev.Texture || today.Fluid != prev.Fluid {
		t.Error("patient-level diet settings should carry forward")
	}
	if today.PatientName != "Jane Doe" || today.Room != "204B" {
		t.Error("patient identity should carry forward")
	}
	for i := range today.Meals {
		if today.Meals[i].Status != SlotPending || !today.Meals[i].Empty() {
			t.Errorf("slot %s should start pending and empty", today.Meals[i].Meal)
		}
	}

	stored := repo.stored(prev.ID)
	if !stored.IsFullyComplete() || stored.Version != prev.Version {
		t.Error("previous day's order must not be modified")
	}
}

func TestRunDaily_Idempotent(t *testing.T) {
	repo := newMockOrderRepo()
	s, m := newTestScheduler(repo)
	ctx := context.Background()
	admitRegular(t, m, "A", testDay.AddDate(0, 0, -1))
	admitRegular(t, m, "B", testDay.AddDate(0, 0, -1))

	first, err := s.RunDaily(ctx, testDay)
	if err != nil || first.Created != 2 {
		t.Fatalf("first run: %+v, %v", first, err)
	}
	writes := repo.updates

	second, err := s.RunDaily(ctx, testDay)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Created != 0 {
		t.Errorf("second run created %d orders", second.Created)
	}
	if second.AlreadyPending != 2 {
		t.Errorf("expected 2 already pending, got %d", second.AlreadyPending)
	}
	if repo.updates != writes {
		t.Errorf("second run wrote %d times", repo.updates-writes)
	}
}

func TestRunDaily_CountsOnlyIncompleteAsPending(t *testing.T) {
	repo := newMockOrderRepo()
	s, m := newTestScheduler(repo)
	completeAll(t, m, admitRegular(t, m, "Done", testDay))
	admitRegular(t, m, "Open", testDay)

	sum, err := s.RunDaily(context.Background(), testDay)
	if err != nil {
		t.Fatalf("RunDaily: %v", err)
	}
	if sum.Created != 0 || sum.AlreadyPending != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestRunDaily_SkipsDischarged(t *testing.T) {
	repo := newMockOrderRepo()
	s, m := newTestScheduler(repo)
	o := admitRegular(t, m, "Going Home", testDay.AddDate(0, 0, -1))
	if _, err := m.Discharge(context.Background(), o.ID); err != nil {
		t.Fatalf("Discharge: %v", err)
	}

	sum, err := s.RunDaily(context.Background(), testDay)
	if err != nil {
		t.Fatalf("RunDaily: %v", err)
	}
	if sum.Created != 0 || sum.Skipped != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestRunDaily_UsesLatestOrderPerPatient(t *testing.T) {
	repo := newMockOrderRepo()
	s, m := newTestScheduler(repo)
	ctx := context.Background()

	old := admitRegular(t, m, "Jane Doe", testDay.AddDate(0, 0, -2))
	puree := diet.DietProfile{Type: diet.DietPuree}
	latest, err := m.OpenOrder(ctx, old.PatientID, testDay.AddDate(0, 0, -1))
	if err != nil {
		t.Fatalf("OpenOrder: %v", err)
	}
	if _, err := m.UpdateDiet(ctx, latest.ID, DietChange{Diet: &puree}); err != nil {
		t.Fatalf("UpdateDiet: %v", err)
	}

	sum, err := s.RunDaily(ctx, testDay)
	if err != nil || sum.Created != 1 {
		t.Fatalf("RunDaily: %+v, %v", sum, err)
	}
	today, err := m.OpenOrder(ctx, old.PatientID, testDay)
	if err != nil {
		t.Fatalf("OpenOrder: %v", err)
	}
	if today.Diet.Type != diet.DietPuree {
		t.Errorf("expected diet from latest order, got %s", today.Diet.Type)
	}
	if !today.IsFullyComplete() {
		t.Error("predetermined diet should be generated complete")
	}
}

func TestRunDaily_PredeterminedFluidWarnings(t *testing.T) {
	repo := newMockOrderRepo()
	s, m := newTestScheduler(repo)
	_, err := m.Admit(context.Background(), AdmitRequest{
		PatientName: "Clear Liquid",
		Diet:        diet.DietProfile{Type: diet.DietClearLiquid},
		Fluid:       diet.Fluid1000,
		Date:        testDay.AddDate(0, 0, -1),
	})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	sum, err := s.RunDaily(context.Background(), testDay)
	if err != nil {
		t.Fatalf("RunDaily: %v", err)
	}
	if sum.Created != 1 {
		t.Fatalf("expected liquid order created despite budget, got %+v", sum)
	}
	if len(sum.Warnings) != 3 {
		t.Fatalf("expected one warning per meal, got %v", sum.Warnings)
	}
	if !strings.HasPrefix(sum.Warnings[0], "Clear Liquid: breakfast menu totals 320ml") {
		t.Errorf("unexpected warning %q", sum.Warnings[0])
	}
}

func TestRunDaily_IsolatesPatientFailures(t *testing.T) {
	repo := newMockOrderRepo()
	s, m := newTestScheduler(repo)
	yesterday := testDay.AddDate(0, 0, -1)

	bad := admitRegular(t, m, "Bad Row", yesterday)
	panicky := admitRegular(t, m, "Panics", yesterday)
	admitRegular(t, m, "Good One", yesterday)
	admitRegular(t, m, "Good Two", yesterday)

	repo.failPatient[bad.PatientID] = fmt.Errorf("constraint violation")
	repo.panicFor = panicky.PatientID

	sum, err := s.RunDaily(context.Background(), testDay)
	if err != nil {
		t.Fatalf("RunDaily: %v", err)
	}
	if sum.Created != 2 || sum.Failed != 2 {
		t.Errorf("expected 2 created and 2 failed, got %+v", sum)
	}
	if !strings.Contains(sum.Message(), "2 failed") {
		t.Errorf("message should mention failures: %q", sum.Message())
	}
}

func TestRunDaily_CancelledBeforeStart(t *testing.T) {
	repo := newMockOrderRepo()
	s, m := newTestScheduler(repo)
	admitRegular(t, m, "A", testDay.AddDate(0, 0, -1))
	admitRegular(t, m, "B", testDay.AddDate(0, 0, -1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := s.RunDaily(ctx, testDay)
	if err == nil {
		t.Fatal("expected context error")
	}
	if sum.Created != 0 {
		t.Errorf("no patient should start after cancellation, got %d", sum.Created)
	}
}

func TestRunDaily_LoadFailure(t *testing.T) {
	repo := newMockOrderRepo()
	s, _ := newTestScheduler(repo)
	repo.loadErr = fmt.Errorf("database unavailable")

	_, err := s.RunDaily(context.Background(), testDay)
	var perr *PersistenceError
	if err == nil || !strings.Contains(err.Error(), "database unavailable") {
		t.Fatalf("expected load failure, got %v", err)
	}
	if !errors.As(err, &perr) {
		t.Errorf("expected PersistenceError, got %T", err)
	}
}

func TestRunDaily_RetiresAndReports(t *testing.T) {
	repo := newMockOrderRepo()
	s, m := newTestScheduler(repo)
	notifier := &recordingNotifier{err: fmt.Errorf("smtp down")}
	recorder := &recordingRecorder{}
	s.SetNotifier(notifier)
	s.SetRecorder(recorder)

	old := admitRegular(t, m, "Long Stay", testDay.AddDate(0, 0, -7))
	for age := 6; age >= 1; age-- {
		if _, err := m.OpenOrder(context.Background(), old.PatientID, testDay.AddDate(0, 0, -age)); err != nil {
			t.Fatalf("OpenOrder(-%d): %v", age, err)
		}
	}

	sum, err := s.RunDaily(context.Background(), testDay)
	if err != nil {
		t.Fatalf("RunDaily: %v", err)
	}
	if sum.Created != 1 || sum.Retired != 1 {
		t.Errorf("expected 1 created and 1 retired, got %+v", sum)
	}
	if !repo.stored(old.ID).Retired() {
		t.Error("order dated 7 days ago should be retired")
	}
	if len(notifier.summaries) != 1 || len(recorder.summaries) != 1 {
		t.Error("notifier and recorder should each see the summary once, even when delivery fails")
	}
	if got := sum.Message(); got != "Auto-Order Complete: 1 new orders, 0 pending" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestLatestByPatient(t *testing.T) {
	p := uuid.New()
	orders := []*PatientOrder{
		{PatientID: p, OrderDate: testDay.AddDate(0, 0, -2), Room: "1"},
		{PatientID: p, OrderDate: testDay, Room: "1"},
		{PatientID: uuid.New(), OrderDate: testDay.AddDate(0, 0, -1), Room: "0"},
	}
	got := latestByPatient(orders)
	if len(got) != 2 {
		t.Fatalf("expected 2 patients, got %d", len(got))
	}
	if got[0].Room != "0" || !SameDay(got[1].OrderDate, testDay) {
		t.Errorf("unexpected ordering/selection: %+v, %+v", got[0], got[1])
	}
}

func TestRunDaily_RecoversAfterRetentionOutage(t *testing.T) {
	repo := newMockOrderRepo()
	s, m := newTestScheduler(repo)
	ctx := context.Background()

	// No rollover ran for a week; listing the ward retires the last order.
	stranded := admitRegular(t, m, "Stranded", testDay.AddDate(0, 0, -7))
	if _, err := m.ListActive(ctx, testDay); err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if !repo.stored(stranded.ID).Retired() {
		t.Fatal("setup: order should be retired")
	}

	sum, err := s.RunDaily(ctx, testDay)
	if err != nil {
		t.Fatalf("RunDaily: %v", err)
	}
	if sum.Created != 1 {
		t.Fatalf("expected the patient to be rolled forward, got %+v", sum)
	}
	today, err := m.OpenOrder(ctx, stranded.PatientID, testDay)
	if err != nil {
		t.Fatalf("OpenOrder: %v", err)
	}
	if today.Retired() || today.PatientName != "Stranded" {
		t.Errorf("unexpected order %+v", today)
	}
}

func TestRunDaily_RetiredDischargedPatientStaysOut(t *testing.T) {
	repo := newMockOrderRepo()
	s, m := newTestScheduler(repo)
	ctx := context.Background()
	o := admitRegular(t, m, "Went Home", testDay.AddDate(0, 0, -10))
	if _, err := m.Discharge(ctx, o.ID); err != nil {
		t.Fatalf("Discharge: %v", err)
	}
	if _, err := m.RetireExpired(ctx, testDay); err != nil {
		t.Fatalf("RetireExpired: %v", err)
	}

	sum, err := s.RunDaily(ctx, testDay)
	if err != nil {
		t.Fatalf("RunDaily: %v", err)
	}
	if sum.Created != 0 || sum.Skipped != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
}
