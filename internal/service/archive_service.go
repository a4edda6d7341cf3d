package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// ArchiveService periodically moves positions older than the retention
// window to cold storage.
type ArchiveService struct {
	archiver  domain.Archiver
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewArchiveService creates an ArchiveService.
func NewArchiveService(archiver domain.Archiver, interval time.Duration, retentionDays int, logger *slog.Logger) *ArchiveService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &ArchiveService{
		archiver:  archiver,
		interval:  interval,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger.With(slog.String("component", "archive_service")),
		now:       time.Now,
	}
}

// RunOnce archives everything older than the retention window.
func (s *ArchiveService) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.retention).Truncate(time.Hour)
	return s.archiver.ArchivePositions(ctx, cutoff)
}

// Run archives on every interval until ctx ends. Failures are logged and
// retried on the next tick.
func (s *ArchiveService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		n, err := s.RunOnce(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "archive_service: run failed",
				slog.String("error", err.Error()),
			)
		} else if n > 0 {
			s.logger.InfoContext(ctx, "archive_service: archived positions",
				slog.Int64("count", n),
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
