// Package notification delivers operator notices (rollover summaries, menu
// warnings) through pluggable channels with template rendering and an
// in-memory delivery log.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Channel is the delivery path of a notification.
type Channel string

const (
	ChannelLog    Channel = "log"
	ChannelOutbox Channel = "outbox"
)

// Delivery states.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Notification is a single operator notice.
type Notification struct {
	ID           string            `json:"id"`
	Channel      Channel           `json:"channel"`
	Subject      string            `json:"subject"`
	Body         string            `json:"body"`
	Level        string            `json:"level"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Sender delivers a rendered notification over one channel.
type Sender interface {
	Deliver(ctx context.Context, n *Notification) error
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template defines a reusable notice.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Level   string `json:"level"`
}

// Built-in template IDs.
const (
	TemplateRolloverSummary = "rollover-summary"
	TemplateRolloverFailed  = "rollover-failed"
	TemplateMenuWarning     = "menu-warning"
)

// TemplateEngine manages templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateRolloverSummary,
			Name:    "Rollover Summary",
			Subject: "Auto-Order Complete",
			Body:    "Auto-Order Complete: {{created}} new orders, {{pending}} pending ({{date}}). Skipped {{skipped}}, failed {{failed}}, retired {{retired}}.",
			Level:   "info",
		},
		{
			ID:      TemplateRolloverFailed,
			Name:    "Rollover Failed",
			Subject: "Auto-Order Failed",
			Body:    "The daily diet order rollover for {{date}} did not complete: {{error}}",
			Level:   "error",
		},
		{
			ID:      TemplateMenuWarning,
			Name:    "Menu Warning",
			Subject: "Diet Order Warning for {{patient_name}}",
			Body:    "{{patient_name}}: {{warning}}",
			Level:   "warn",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// Lookup returns a copy of the template.
func (e *TemplateEngine) Lookup(templateID string) (Template, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.templates[templateID]
	if !ok {
		return Template{}, false
	}
	return *t, true
}

// Render performs {{key}} replacement. Keys absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	t, ok := e.Lookup(templateID)
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Senders
// ---------------------------------------------------------------------------

// LogSender writes notices to the structured log.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "operator-notice").Logger()}
}

func (s *LogSender) Deliver(_ context.Context, n *Notification) error {
	level, err := zerolog.ParseLevel(n.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	s.logger.WithLevel(level).
		Str("notification_id", n.ID).
		Str("subject", n.Subject).
		Msg(n.Body)
	return nil
}

// OutboxSender appends notices as JSON lines to a file the operator
// console tails.
type OutboxSender struct {
	mu   sync.Mutex
	path string
}

func NewOutboxSender(path string) *OutboxSender {
	return &OutboxSender{path: path}
}

func (s *OutboxSender) Deliver(_ context.Context, n *Notification) error {
	line, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("write outbox: %w", err)
	}
	return f.Close()
}

// MockSender is a test double for Sender.
type MockSender struct {
	mu         sync.Mutex
	calls      []Notification
	ShouldFail bool
	FailError  string
}

// Deliver records the call and optionally returns an error.
func (m *MockSender) Deliver(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, *n)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded deliveries.
func (m *MockSender) Calls() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.calls))
	copy(out, m.calls)
	return out
}

// ---------------------------------------------------------------------------
// Notification Manager
// ---------------------------------------------------------------------------

// NotificationManager renders, delivers and remembers notices.
type NotificationManager struct {
	senders       map[Channel]Sender
	templates     *TemplateEngine
	now           func() time.Time
	mu            sync.RWMutex
	notifications map[string]*Notification
}

// NewNotificationManager constructs a NotificationManager. Channels without
// a sender fail at delivery time.
func NewNotificationManager(tpl *TemplateEngine, senders map[Channel]Sender) *NotificationManager {
	if tpl == nil {
		tpl = NewTemplateEngine()
	}
	s := make(map[Channel]Sender, len(senders))
	for ch, sender := range senders {
		s[ch] = sender
	}
	return &NotificationManager{
		senders:       s,
		templates:     tpl,
		now:           time.Now,
		notifications: make(map[string]*Notification),
	}
}

// Channels returns the configured channels in name order.
func (m *NotificationManager) Channels() []Channel {
	out := make([]Channel, 0, len(m.senders))
	for ch := range m.senders {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Send delivers n, assigning an ID and timestamps, and records the result.
func (m *NotificationManager) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = m.now().UTC()
	n.Status = StatusPending

	sendErr := m.deliver(ctx, n)

	m.mu.Lock()
	m.notifications[n.ID] = n
	m.mu.Unlock()
	return sendErr
}

func (m *NotificationManager) deliver(ctx context.Context, n *Notification) error {
	sender, ok := m.senders[n.Channel]
	var err error
	if !ok {
		err = fmt.Errorf("unsupported notification channel: %s", n.Channel)
	} else {
		err = sender.Deliver(ctx, n)
	}

	if err != nil {
		n.Status = StatusFailed
		n.Error = err.Error()
		return err
	}
	n.Status = StatusSent
	n.Error = ""
	sentAt := m.now().UTC()
	n.SentAt = &sentAt
	return nil
}

// Broadcast renders a template and sends it on every configured channel.
// All channels are attempted; the errors are joined.
func (m *NotificationManager) Broadcast(ctx context.Context, templateID string, data map[string]string) ([]*Notification, error) {
	var out []*Notification
	var errs []error
	for _, ch := range m.Channels() {
		n, err := m.SendFromTemplate(ctx, ch, templateID, data)
		if n == nil {
			return out, err
		}
		out = append(out, n)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch, err))
		}
	}
	return out, errors.Join(errs...)
}

// SendFromTemplate renders a template and sends it on one channel.
func (m *NotificationManager) SendFromTemplate(ctx context.Context, ch Channel, templateID string, data map[string]string) (*Notification, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	tpl, _ := m.templates.Lookup(templateID)

	n := &Notification{
		Channel:      ch,
		Subject:      subject,
		Body:         body,
		Level:        tpl.Level,
		TemplateID:   templateID,
		TemplateData: data,
	}
	if err := m.Send(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// Recent returns up to limit notifications, newest first.
func (m *NotificationManager) Recent(_ context.Context, limit int) []*Notification {
	m.mu.RLock()
	out := make([]*Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		out = append(out, n)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Retry re-sends a failed notification.
func (m *NotificationManager) Retry(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return fmt.Errorf("notification %q not found", id)
	}
	if n.Status != StatusFailed {
		return fmt.Errorf("notification %q is not in failed status (current: %s)", id, n.Status)
	}
	return m.deliver(ctx, n)
}

// RetryFailed re-sends every failed notification and reports how many went
// through. Errors of the ones still failing are joined.
func (m *NotificationManager) RetryFailed(ctx context.Context) (int, error) {
	var errs []error
	retried := 0
	for _, n := range m.Recent(ctx, 0) {
		if n.Status != StatusFailed {
			continue
		}
		if err := m.Retry(ctx, n.ID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.ID, err))
			continue
		}
		retried++
	}
	return retried, errors.Join(errs...)
}

// NotificationStats returns counts of notifications grouped by status.
func (m *NotificationManager) NotificationStats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, n := range m.notifications {
		stats[n.Status]++
	}
	return stats
}
