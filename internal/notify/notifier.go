// Package notify delivers operational alerts to chat channels (Telegram,
// Discord). Alerts are filtered by event so operators only receive what
// they subscribed to.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Alert events.
const (
	EventReconciliationFailed = "reconciliation_failed"
	EventWithdrawRequested    = "withdraw_requested"
	EventDepositRequested     = "deposit_requested"
	EventArchiveFailed        = "archive_failed"
	EventArchiveCompleted     = "archive_completed"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Alert is a single operational notification.
type Alert struct {
	Event  string
	Title  string
	Fields map[string]string
}

// Message renders Fields as sorted "key: value" lines.
func (a Alert) Message() string {
	keys := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", k, a.Fields[k])
	}
	return b.String()
}

// Notifier fans an Alert out to every Sender whose event filter allows it.
// An empty filter allows every event. A nil *Notifier is a no-op.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers a to all senders. A failure of one sender does not stop the
// others; all failures are joined into the returned error.
func (n *Notifier) Notify(ctx context.Context, a Alert) error {
	if n == nil || len(n.senders) == 0 {
		return nil
	}
	if len(n.events) > 0 && !n.events[a.Event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", a.Event))
		return nil
	}

	msg := a.Message()
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, a.Title, msg); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", a.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", a.Event),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
