package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/hunch/internal/domain"
)

const (
	contentTypeJSONL = "application/x-ndjson"
	// archiveBatch bounds how many positions are held in memory per object.
	archiveBatch = 5000
)

// PositionArchiver implements domain.Archiver. Positions older than the
// cutoff are written as JSONL objects, confirmed with HEAD, and only then
// deleted from the primary store.
type PositionArchiver struct {
	writer    domain.BlobWriter
	reader    domain.BlobReader
	positions domain.PositionStore
	audit     domain.AuditStore
	prefix    string
	batch     int
	logger    *slog.Logger
}

// NewArchiver creates a PositionArchiver. audit may be nil.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	positions domain.PositionStore,
	audit domain.AuditStore,
	prefix string,
	logger *slog.Logger,
) *PositionArchiver {
	if prefix == "" {
		prefix = "positions"
	}
	return &PositionArchiver{
		writer:    writer,
		reader:    reader,
		positions: positions,
		audit:     audit,
		prefix:    prefix,
		batch:     archiveBatch,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// ArchivePositions moves every position created before the cutoff to object
// storage and returns how many were archived. A failed upload leaves the
// rows in place.
func (a *PositionArchiver) ArchivePositions(ctx context.Context, before time.Time) (int64, error) {
	var (
		total int64
		part  int
	)

	for {
		batch, err := a.positions.ListBefore(ctx, before, a.batch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive positions query: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		full := len(batch) == a.batch
		cut := before
		if full {
			// Rows sharing the last timestamp may continue past the batch;
			// leave them all for the next round.
			cut = batch[len(batch)-1].CreatedAt
			n := len(batch)
			for n > 0 && !batch[n-1].CreatedAt.Before(cut) {
				n--
			}
			if n == 0 {
				return total, fmt.Errorf("s3blob: archive positions: more than %d positions at %s",
					a.batch, cut.Format(time.RFC3339Nano))
			}
			batch = batch[:n]
		}

		path := archivePath(a.prefix, before, part)
		if err := a.upload(ctx, path, batch); err != nil {
			return total, err
		}
		total += int64(len(batch))
		part++

		if _, err := a.positions.DeleteBefore(ctx, cut); err != nil {
			return total, fmt.Errorf("s3blob: archive positions delete: %w", err)
		}
		if !full {
			break
		}
	}

	if total > 0 {
		a.logger.InfoContext(ctx, "positions archived",
			slog.Int64("count", total),
			slog.Int("objects", part),
			slog.String("before", before.Format(time.RFC3339)),
		)
		if a.audit != nil {
			if err := a.audit.Log(ctx, "archive.positions", map[string]any{
				"count":   total,
				"objects": part,
				"before":  before.Format(time.RFC3339),
			}); err != nil {
				return total, fmt.Errorf("s3blob: archive positions audit log: %w", err)
			}
		}
	}
	return total, nil
}

func (a *PositionArchiver) upload(ctx context.Context, path string, positions []domain.Position) error {
	buf, err := marshalJSONL(positions)
	if err != nil {
		return fmt.Errorf("s3blob: archive positions marshal: %w", err)
	}

	if int64(len(buf)) > minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL)
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive positions upload: %w", err)
	}

	ok, err := a.reader.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("s3blob: archive positions verify: %w", err)
	}
	if !ok {
		return fmt.Errorf("s3blob: archive positions verify %s: %w", path, domain.ErrNotFound)
	}
	return nil
}

// archivePath partitions objects by the cutoff's date:
//
//	positions/2026/03/01/positions-20260301T000000Z-0000.jsonl
func archivePath(prefix string, before time.Time, part int) string {
	before = before.UTC()
	return fmt.Sprintf("%s/%s/positions-%s-%04d.jsonl",
		prefix, before.Format("2006/01/02"), before.Format("20060102T150405Z"), part)
}

// marshalJSONL writes one compact JSON document per line.
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

var _ domain.Archiver = (*PositionArchiver)(nil)
