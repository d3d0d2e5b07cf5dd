// Package pipeline runs the scheduled cold-storage export of settled
// contracts.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/optiondesk/internal/domain"
	"github.com/alanyoungcy/optiondesk/internal/notify"
)

// Notifier delivers archive alerts. *notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, a notify.Alert) error
}

// Archiver exports settled contracts older than the retention period.
type Archiver struct {
	blobArchiver  domain.Archiver
	notifier      Notifier
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
}

// NewArchiver creates an Archiver. notifier may be nil.
func NewArchiver(blobArchiver domain.Archiver, notifier Notifier, retentionDays int, logger *slog.Logger) *Archiver {
	if retentionDays < 0 {
		retentionDays = 0
	}
	return &Archiver{
		blobArchiver:  blobArchiver,
		notifier:      notifier,
		retentionDays: retentionDays,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Cutoff is the UTC midnight retentionDays before today. Archive files cover
// whole days ending at the cutoff.
func (a *Archiver) Cutoff() time.Time {
	today := a.now().UTC().Truncate(24 * time.Hour)
	return today.AddDate(0, 0, -a.retentionDays)
}

// Run executes one archive run.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := a.Cutoff()
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	count, err := a.blobArchiver.ArchiveSettled(ctx, cutoff)
	if err != nil {
		a.alert(ctx, notify.Alert{
			Event:  notify.EventArchiveFailed,
			Title:  "Archive run failed",
			Fields: map[string]string{"cutoff": cutoff.Format(time.RFC3339), "error": err.Error()},
		})
		return fmt.Errorf("archiving contracts before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	a.logger.InfoContext(ctx, "archive run complete", slog.Int64("archived", count))
	if count > 0 {
		a.alert(ctx, notify.Alert{
			Event: notify.EventArchiveCompleted,
			Title: "Archive run complete",
			Fields: map[string]string{
				"cutoff":   cutoff.Format(time.RFC3339),
				"archived": strconv.FormatInt(count, 10),
			},
		})
	}
	return nil
}

// RunCron runs the archiver on a 5-field cron schedule until ctx is
// cancelled. A failed run is logged and the schedule continues.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := ParseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
	}
	a.logger.InfoContext(ctx, "archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := sched.Next(a.now().UTC())
		if err != nil {
			return err
		}
		wait := next.Sub(a.now())
		a.logger.DebugContext(ctx, "archiver waiting",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (a *Archiver) alert(ctx context.Context, al notify.Alert) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Notify(ctx, al); err != nil {
		a.logger.WarnContext(ctx, "archive alert failed", slog.String("error", err.Error()))
	}
}
