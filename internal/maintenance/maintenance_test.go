package maintenance

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bureaudocs/filedepot-backend/internal/uploads"
	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
	"github.com/bureaudocs/filedepot-backend/pkg/hashutil"
	"github.com/bureaudocs/filedepot-backend/pkg/storage/disk"
)

type stubQueries struct {
	dbPaths      []string
	reverified   map[string]struct{}
	checksumRows []uploads.ChecksumRow
}

func (s *stubQueries) AllBlobPaths(context.Context) ([]string, error) {
	return s.dbPaths, nil
}

func (s *stubQueries) CountByBlobPaths(_ context.Context, paths []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, path := range paths {
		if _, ok := s.reverified[path]; ok {
			out[path] = struct{}{}
		}
	}
	return out, nil
}

func (s *stubQueries) ChecksumRows(context.Context, *time.Time, *time.Time) ([]uploads.ChecksumRow, error) {
	return s.checksumRows, nil
}

func noProgress(float64, string, map[string]any) {}

func backdate(t *testing.T, store *disk.Store, relPath string) {
	t.Helper()
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(store.AbsPath(relPath), old, old))
}

func saveBlob(t *testing.T, store *disk.Store, relPath, body string) string {
	t.Helper()
	written, err := store.Save(relPath, strings.NewReader(body))
	require.NoError(t, err)
	return written
}

func TestOrphanFinderReportsUnknownFiles(t *testing.T) {
	store, err := disk.New(t.TempDir())
	require.NoError(t, err)

	known := saveBlob(t, store, "2026/known.txt", "known")
	orphan := saveBlob(t, store, "2026/orphan.txt", "orphan bytes")
	raced := saveBlob(t, store, "2026/raced.txt", "confirmed during the walk")
	fresh := saveBlob(t, store, "tmp/inflight.txt", "still uploading")
	for _, path := range []string{known, orphan, raced} {
		backdate(t, store, path)
	}
	_ = fresh // recent mtime keeps it out of the candidate set

	queries := &stubQueries{
		dbPaths:    []string{known},
		reverified: map[string]struct{}{raced: {}},
	}
	finder := NewOrphanFinder(queries, store, time.Hour, 2, 2)

	report, err := finder.Run(context.Background(), noProgress)
	require.NoError(t, err)

	assert.Equal(t, 4, report.ScannedFiles)
	require.Equal(t, 1, report.OrphanCount)
	assert.Equal(t, orphan, report.Files[0].Path)
	assert.Equal(t, int64(len("orphan bytes")), report.TotalBytes)
}

func TestOrphanFinderEmptyDisk(t *testing.T) {
	store, err := disk.New(t.TempDir())
	require.NoError(t, err)

	finder := NewOrphanFinder(&stubQueries{}, store, time.Hour, 0, 0)
	report, err := finder.Run(context.Background(), noProgress)
	require.NoError(t, err)
	assert.Zero(t, report.OrphanCount)
	assert.Zero(t, report.ScannedFiles)
}

func TestChecksumValidatorBuckets(t *testing.T) {
	store, err := disk.New(t.TempDir())
	require.NoError(t, err)

	good := saveBlob(t, store, "a/good.txt", "hello world")
	bad := saveBlob(t, store, "a/bad.txt", "tampered")
	goodHash, _, err := hashutil.SumFile(store.AbsPath(good))
	require.NoError(t, err)

	queries := &stubQueries{checksumRows: []uploads.ChecksumRow{
		{UUID: uuid.New(), BlobPath: good, Hash: goodHash},
		{UUID: uuid.New(), BlobPath: bad, Hash: goodHash},
		{UUID: uuid.New(), BlobPath: "a/missing.txt", Hash: goodHash},
	}}
	validator := NewChecksumValidator(queries, store)

	report, err := validator.Run(context.Background(), nil, nil, noProgress)
	require.NoError(t, err)

	assert.Equal(t, 3, report.CheckedCount)
	assert.Equal(t, 1, report.CorrectCount)
	require.Len(t, report.Mismatches, 1)
	assert.Equal(t, bad, report.Mismatches[0].Path)
	assert.Equal(t, goodHash, report.Mismatches[0].Expected)
	assert.NotEqual(t, goodHash, report.Mismatches[0].Observed)
	require.Len(t, report.MissingFiles, 1)
	assert.Equal(t, "a/missing.txt", report.MissingFiles[0].Path)
}

type stubRunRepo struct {
	runs  map[uuid.UUID]*models.MaintenanceRun
	saves int
}

func newStubRunRepo() *stubRunRepo {
	return &stubRunRepo{runs: make(map[uuid.UUID]*models.MaintenanceRun)}
}

func (s *stubRunRepo) Create(_ context.Context, run *models.MaintenanceRun) error {
	run.CreatedAt = time.Now().UTC()
	s.runs[run.TaskID] = run
	return nil
}

func (s *stubRunRepo) Find(_ context.Context, taskID uuid.UUID) (*models.MaintenanceRun, error) {
	run, ok := s.runs[taskID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return run, nil
}

func (s *stubRunRepo) Save(_ context.Context, run *models.MaintenanceRun) error {
	s.saves++
	s.runs[run.TaskID] = run
	return nil
}

func (s *stubRunRepo) ListPending(_ context.Context, _ int) ([]models.MaintenanceRun, error) {
	var out []models.MaintenanceRun
	for _, run := range s.runs {
		if run.Status == enums.MaintenanceStatusPending {
			out = append(out, *run)
		}
	}
	return out, nil
}

func newTestEngine(t *testing.T, store *disk.Store, queries *stubQueries) (*Service, *stubRunRepo) {
	t.Helper()
	repo := newStubRunRepo()
	svc, err := NewService(
		repo,
		NewOrphanFinder(queries, store, time.Hour, 100, 2),
		NewChecksumValidator(queries, store),
	)
	require.NoError(t, err)
	return svc, repo
}

func TestExecuteRecordsReport(t *testing.T) {
	store, err := disk.New(t.TempDir())
	require.NoError(t, err)
	orphan := saveBlob(t, store, "x/orphan.bin", "stray")
	backdate(t, store, orphan)

	svc, repo := newTestEngine(t, store, &stubQueries{})
	run, err := svc.CreateRun(context.Background(), enums.MaintenanceTaskOrphans, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.MaintenanceStatusPending, run.Status)

	require.NoError(t, svc.Execute(context.Background(), run))

	stored := repo.runs[run.TaskID]
	assert.Equal(t, enums.MaintenanceStatusDone, stored.Status)
	assert.Equal(t, 100.0, stored.ProgressPercentage)
	require.NotNil(t, stored.CompletedAt)
	assert.EqualValues(t, 1, stored.DetailedReport["orphan_count"])
}

func TestExecuteCapturesJobError(t *testing.T) {
	store, err := disk.New(t.TempDir())
	require.NoError(t, err)

	blob := saveBlob(t, store, "y/row.txt", "payload")
	svc, repo := newTestEngine(t, store, &stubQueries{checksumRows: []uploads.ChecksumRow{
		{UUID: uuid.New(), BlobPath: blob, Hash: "00"},
	}})
	run, err := svc.CreateRun(context.Background(), enums.MaintenanceTaskChecksums, map[string]any{
		"from_date": "2026-01-01T00:00:00Z",
	})
	require.NoError(t, err)

	// cancelled context makes the validator fail mid-run
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, svc.Execute(cancelled, run))

	stored := repo.runs[run.TaskID]
	assert.Equal(t, enums.MaintenanceStatusError, stored.Status)
	assert.NotEmpty(t, stored.ErrorMessage)
}

func TestCreateRunRejectsUnknownTask(t *testing.T) {
	store, err := disk.New(t.TempDir())
	require.NoError(t, err)
	svc, _ := newTestEngine(t, store, &stubQueries{})

	_, err = svc.CreateRun(context.Background(), enums.MaintenanceTask("defrag"), nil)
	require.Error(t, err)
}
