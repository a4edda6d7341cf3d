package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchiver struct {
	cutoffs []time.Time
	n       int64
}

func (f *fakeArchiver) ArchivePositions(_ context.Context, before time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, before)
	return f.n, nil
}

func TestArchiveService_RunOnce(t *testing.T) {
	arch := &fakeArchiver{n: 7}
	svc := NewArchiveService(arch, time.Hour, 30, discardLogger())
	svc.now = func() time.Time { return time.Date(2026, 3, 31, 12, 34, 0, 0, time.UTC) }

	n, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	require.Len(t, arch.cutoffs, 1)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), arch.cutoffs[0])
}

func TestArchiveService_RunStopsOnCancel(t *testing.T) {
	arch := &fakeArchiver{}
	svc := NewArchiveService(arch, time.Hour, 30, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, svc.Run(ctx))
	assert.Len(t, arch.cutoffs, 1)
}
