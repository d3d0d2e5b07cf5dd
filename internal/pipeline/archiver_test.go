package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/optiondesk/internal/notify"
)

type stubArchiver struct {
	cutoffs []time.Time
	count   int64
	err     error
}

func (s *stubArchiver) ArchiveSettled(_ context.Context, before time.Time) (int64, error) {
	s.cutoffs = append(s.cutoffs, before)
	return s.count, s.err
}

type stubNotifier struct{ events []string }

func (s *stubNotifier) Notify(_ context.Context, a notify.Alert) error {
	s.events = append(s.events, a.Event)
	return nil
}

func newTestArchiver(blob *stubArchiver, n *stubNotifier, days int) *Archiver {
	a := NewArchiver(blob, n, days, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return time.Date(2026, 4, 10, 3, 0, 0, 0, time.UTC) }
	return a
}

func TestArchiverRunCutoff(t *testing.T) {
	blob := &stubArchiver{count: 4}
	n := &stubNotifier{}
	a := newTestArchiver(blob, n, 7)

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, []time.Time{time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)}, blob.cutoffs)
	assert.Equal(t, []string{notify.EventArchiveCompleted}, n.events)
}

func TestArchiverRunNothingToDo(t *testing.T) {
	n := &stubNotifier{}
	a := newTestArchiver(&stubArchiver{}, n, 0)
	require.NoError(t, a.Run(context.Background()))
	assert.Empty(t, n.events)
}

func TestArchiverRunFailureAlerts(t *testing.T) {
	n := &stubNotifier{}
	a := newTestArchiver(&stubArchiver{err: errors.New("bucket gone")}, n, 30)
	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket gone")
	assert.Equal(t, []string{notify.EventArchiveFailed}, n.events)
}

func TestRunCronBadExpr(t *testing.T) {
	a := newTestArchiver(&stubArchiver{}, &stubNotifier{}, 1)
	assert.Error(t, a.RunCron(context.Background(), "not a cron"))
}

func TestRunCronStops(t *testing.T) {
	a := newTestArchiver(&stubArchiver{}, &stubNotifier{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.RunCron(ctx, "0 3 * * *"), context.Canceled)
}
