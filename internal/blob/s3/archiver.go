package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

const (
	contentTypeJSONL = "application/x-ndjson"

	// archiveWindow is the slice of closed_at covered by one archive file.
	archiveWindow = 24 * time.Hour
)

// SettledLister lists settled contracts closed before a cutoff, oldest first.
// Both option stores satisfy it.
type SettledLister interface {
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.OptionContract, error)
}

// ArchiveImpl implements domain.Archiver. Archived rows stay in the primary
// store; pruning them is a separate step.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	options SettledLister
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewArchiver creates an ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, options SettledLister, audit domain.AuditStore, logger *slog.Logger) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		options: options,
		audit:   audit,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveSettled writes the contracts closed in [before-24h, before) to
// archive/binary_options/YYYY-MM-DD.jsonl. A day already present in the
// bucket is skipped, so reruns are harmless.
func (a *ArchiveImpl) ArchiveSettled(ctx context.Context, before time.Time) (int64, error) {
	before = before.UTC()
	from := before.Add(-archiveWindow)
	path := ArchivePath(from)

	exists, err := a.writer.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive: %w", err)
	}
	if exists {
		a.logger.DebugContext(ctx, "archive already written", slog.String("path", path))
		return 0, nil
	}

	all, err := a.options.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	window := make([]domain.OptionContract, 0, len(all))
	for _, c := range all {
		if c.ClosedAt != nil && !c.ClosedAt.Before(from) {
			window = append(window, c)
		}
	}
	if len(window) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(window)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}
	if int64(len(buf)) > minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	count := int64(len(window))
	if err := a.audit.Log(ctx, "archive_completed", map[string]any{
		"path":   path,
		"count":  count,
		"from":   from.Format(time.RFC3339),
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive audit log: %w", err)
	}
	a.logger.InfoContext(ctx, "settled contracts archived",
		slog.String("path", path),
		slog.Int64("count", count),
	)
	return count, nil
}

// ArchivePath is the object key for the archive day starting at day.
//
//	archive/binary_options/2026-04-01.jsonl
func ArchivePath(day time.Time) string {
	return fmt.Sprintf("archive/binary_options/%s.jsonl", day.UTC().Format("2006-01-02"))
}

// marshalJSONL encodes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*ArchiveImpl)(nil)
