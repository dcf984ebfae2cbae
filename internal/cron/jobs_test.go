package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureaudocs/filedepot-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test"})
}

type fakeJanitor struct {
	tempRemoved    int
	deletedRemoved int
	lastMaxAge     time.Duration
	err            error
}

func (f *fakeJanitor) CleanupTempUploads(_ context.Context, maxAge time.Duration) (int, error) {
	f.lastMaxAge = maxAge
	return f.tempRemoved, f.err
}

func (f *fakeJanitor) CleanupExpiredDeleted(context.Context) (int, error) {
	return f.deletedRemoved, f.err
}

func TestTempUploadCleanupJob(t *testing.T) {
	t.Parallel()

	janitor := &fakeJanitor{tempRemoved: 3}
	job, err := NewTempUploadCleanupJob(TempUploadCleanupJobParams{
		Logger:  testLogger(),
		Uploads: janitor,
		MaxAge:  30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewTempUploadCleanupJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if janitor.lastMaxAge != 30*time.Minute {
		t.Fatalf("expected max age to pass through, got %s", janitor.lastMaxAge)
	}
}

func TestTempUploadCleanupJobDefaultsMaxAge(t *testing.T) {
	t.Parallel()

	janitor := &fakeJanitor{}
	job, err := NewTempUploadCleanupJob(TempUploadCleanupJobParams{
		Logger:  testLogger(),
		Uploads: janitor,
	})
	if err != nil {
		t.Fatalf("NewTempUploadCleanupJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if janitor.lastMaxAge != defaultTempUploadMaxAge {
		t.Fatalf("expected default max age, got %s", janitor.lastMaxAge)
	}
}

func TestDeletedUploadCleanupJobPropagatesErrors(t *testing.T) {
	t.Parallel()

	janitor := &fakeJanitor{err: errors.New("db down")}
	job, err := NewDeletedUploadCleanupJob(DeletedUploadCleanupJobParams{
		Logger:  testLogger(),
		Uploads: janitor,
	})
	if err != nil {
		t.Fatalf("NewDeletedUploadCleanupJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type fakeSweeper struct {
	removed int64
	err     error
}

func (f *fakeSweeper) Sweep(context.Context) (int64, error) {
	return f.removed, f.err
}

func TestTokenSweepJob(t *testing.T) {
	t.Parallel()

	job, err := NewTokenSweepJob(TokenSweepJobParams{
		Logger: testLogger(),
		Tokens: &fakeSweeper{removed: 12},
	})
	if err != nil {
		t.Fatalf("NewTokenSweepJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

type fakeAdvancer struct {
	lastLimit int
	err       error
}

func (f *fakeAdvancer) AdvancePending(_ context.Context, limit int) (int, error) {
	f.lastLimit = limit
	return 0, f.err
}

func TestAsyncAdvanceJobUsesBatchSize(t *testing.T) {
	t.Parallel()

	advancer := &fakeAdvancer{}
	job, err := NewAsyncAdvanceJob(AsyncAdvanceJobParams{
		Logger:    testLogger(),
		Pipeline:  advancer,
		BatchSize: 5,
	})
	if err != nil {
		t.Fatalf("NewAsyncAdvanceJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if advancer.lastLimit != 5 {
		t.Fatalf("expected batch 5, got %d", advancer.lastLimit)
	}
}

type fakeMaintenance struct {
	executed int
	err      error
}

func (f *fakeMaintenance) ExecutePending(context.Context, int) (int, error) {
	return f.executed, f.err
}

func TestMaintenanceJobPropagatesErrors(t *testing.T) {
	t.Parallel()

	job, err := NewMaintenanceJob(MaintenanceJobParams{
		Logger:      testLogger(),
		Maintenance: &fakeMaintenance{err: errors.New("boom")},
	})
	if err != nil {
		t.Fatalf("NewMaintenanceJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
