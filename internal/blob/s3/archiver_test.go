package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/optiondesk/internal/domain"
	storemem "github.com/alanyoungcy/optiondesk/internal/store/memory"
)

type memWriter struct {
	objects map[string][]byte
	puts    int
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = b
	w.puts++
	return nil
}

func (w *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, contentTypeJSONL)
}

func (w *memWriter) Exists(_ context.Context, path string) (bool, error) {
	_, ok := w.objects[path]
	return ok, nil
}

func settled(id string, closed time.Time) domain.OptionContract {
	exit := decimal.NewFromInt(101)
	return domain.OptionContract{
		ID: id, OwnerID: "u1", Instrument: "BTC", Direction: domain.DirectionUp,
		Stake: decimal.NewFromInt(10), EntryPrice: decimal.NewFromInt(100), DurationSeconds: 60,
		CreatedAt: closed.Add(-time.Minute), Status: domain.OptionLost,
		ExitPrice: &exit, ClosedAt: &closed,
	}
}

func TestArchiveSettledWindow(t *testing.T) {
	ctx := context.Background()
	cutoff := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)

	ledger := storemem.NewLedger(storemem.NewBalances())
	ledger.Insert(settled("old", cutoff.Add(-30*time.Hour)))
	ledger.Insert(settled("a", cutoff.Add(-20*time.Hour)))
	ledger.Insert(settled("b", cutoff.Add(-time.Hour)))
	ledger.Insert(settled("late", cutoff.Add(time.Hour)))

	w := &memWriter{objects: map[string][]byte{}}
	audit := storemem.NewAuditLog()
	a := NewArchiver(w, ledger, audit, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := a.ArchiveSettled(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	body, ok := w.objects["archive/binary_options/2026-04-01.jsonl"]
	require.True(t, ok)
	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		var c domain.OptionContract
		require.NoError(t, json.Unmarshal(sc.Bytes(), &c))
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.Equal(t, []string{"archive_completed"}, audit.Events())

	n, err = a.ArchiveSettled(ctx, cutoff)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, w.puts)
}

func TestArchiveSettledEmptyDay(t *testing.T) {
	w := &memWriter{objects: map[string][]byte{}}
	a := NewArchiver(w, storemem.NewLedger(storemem.NewBalances()), storemem.NewAuditLog(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := a.ArchiveSettled(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.objects)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "https://minio.local", normaliseEndpoint("minio.local", true))
	assert.Equal(t, "http://minio.local", normaliseEndpoint("minio.local", false))
}
