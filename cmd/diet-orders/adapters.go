package main

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/dietorders/internal/domain/mealorder"
	"github.com/ehr/dietorders/internal/platform/metrics"
	"github.com/ehr/dietorders/internal/platform/notification"
)

// summaryNotifier adapts the notification manager to
// mealorder.SummaryNotifier.
type summaryNotifier struct {
	notices *notification.NotificationManager
}

func newSummaryNotifier(n *notification.NotificationManager) *summaryNotifier {
	return &summaryNotifier{notices: n}
}

// NotifySummary implements mealorder.SummaryNotifier.
func (n *summaryNotifier) NotifySummary(ctx context.Context, s mealorder.Summary) error {
	if _, err := n.notices.Broadcast(ctx, notification.TemplateRolloverSummary, summaryData(s)); err != nil {
		return err
	}
	for _, w := range s.Warnings {
		name, text, ok := strings.Cut(w, ": ")
		if !ok {
			name, text = "", w
		}
		if _, err := n.notices.Broadcast(ctx, notification.TemplateMenuWarning, map[string]string{
			"patient_name": name,
			"warning":      text,
		}); err != nil {
			return err
		}
	}
	return nil
}

func summaryData(s mealorder.Summary) map[string]string {
	return map[string]string{
		"date":    s.Date.Format(dateLayout),
		"created": strconv.Itoa(s.Created),
		"pending": strconv.Itoa(s.AlreadyPending),
		"skipped": strconv.Itoa(s.Skipped),
		"failed":  strconv.Itoa(s.Failed),
		"retired": strconv.FormatInt(s.Retired, 10),
	}
}

func notifyRolloverFailure(ctx context.Context, n *notification.NotificationManager, day time.Time, cause error, logger zerolog.Logger) {
	_, err := n.Broadcast(context.WithoutCancel(ctx), notification.TemplateRolloverFailed, map[string]string{
		"date":  day.Format(dateLayout),
		"error": cause.Error(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to deliver rollover failure notice")
	}
}

// retryNotices re-sends notices that failed earlier in this process and logs
// the delivery tally.
func retryNotices(ctx context.Context, n *notification.NotificationManager, logger zerolog.Logger) {
	retried, err := n.RetryFailed(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("some notices are still undeliverable")
	}
	stats := n.NotificationStats(ctx)
	logger.Info().
		Int("retried", retried).
		Int("sent", stats[notification.StatusSent]).
		Int("failed", stats[notification.StatusFailed]).
		Msg("operator notices")
}

// rolloverMetrics adapts metrics.Metrics to mealorder.SummaryRecorder and
// refreshes the textfile after every run.
type rolloverMetrics struct {
	m      *metrics.Metrics
	path   string
	logger zerolog.Logger
}

func newRolloverMetrics(m *metrics.Metrics, path string, logger zerolog.Logger) *rolloverMetrics {
	return &rolloverMetrics{m: m, path: path, logger: logger}
}

// ObserveRollover implements mealorder.SummaryRecorder.
func (r *rolloverMetrics) ObserveRollover(s mealorder.Summary) {
	r.m.ObserveRun(metrics.Run{
		Finished:       time.Now(),
		Duration:       s.Duration,
		Created:        s.Created,
		AlreadyPending: s.AlreadyPending,
		Skipped:        s.Skipped,
		Failed:         s.Failed,
		Retired:        s.Retired,
		Warnings:       len(s.Warnings),
	})
	r.flush()
}

// ObserveFailure counts a run that returned an error.
func (r *rolloverMetrics) ObserveFailure() {
	r.m.ObserveError("rollover")
	r.flush()
}

func (r *rolloverMetrics) flush() {
	if err := r.m.WriteTextfile(r.path); err != nil {
		r.logger.Error().Err(err).Msg("failed to write metrics textfile")
	}
}
