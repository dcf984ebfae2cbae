package maintenance

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"time"

	"go.uber.org/multierr"

	"github.com/bureaudocs/filedepot-backend/internal/uploads"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
	"github.com/bureaudocs/filedepot-backend/pkg/hashutil"
)

type checksumQueries interface {
	ChecksumRows(ctx context.Context, from, to *time.Time) ([]uploads.ChecksumRow, error)
}

type blobOpener interface {
	Open(relPath string) (io.ReadCloser, error)
}

// HashMismatch records one upload whose bytes no longer match the
// stored hash.
type HashMismatch struct {
	UUID     string `json:"uuid"`
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Observed string `json:"observed"`
}

// MissingFile records one upload whose blob is gone.
type MissingFile struct {
	UUID string `json:"uuid"`
	Path string `json:"path"`
}

// ChecksumReport summarises one validator run with its three buckets.
type ChecksumReport struct {
	CheckedCount int            `json:"checked_count"`
	CorrectCount int            `json:"correct_count"`
	Mismatches   []HashMismatch `json:"hash_mismatch"`
	MissingFiles []MissingFile  `json:"file_not_found"`
}

// ChecksumValidator re-hashes stored files against their recorded
// digests.
type ChecksumValidator struct {
	repo  checksumQueries
	blobs blobOpener
}

// NewChecksumValidator builds the checksum job.
func NewChecksumValidator(repo checksumQueries, blobs blobOpener) *ChecksumValidator {
	return &ChecksumValidator{repo: repo, blobs: blobs}
}

// Run validates every upload with a stored hash, optionally windowed
// by [from, to]. Unreadable files are aggregated into the returned
// error without stopping the sweep.
func (v *ChecksumValidator) Run(ctx context.Context, from, to *time.Time, progress ProgressFunc) (*ChecksumReport, error) {
	progress(0, "loading checksum rows", nil)
	rows, err := v.repo.ChecksumRows(ctx, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checksum rows")
	}

	report := &ChecksumReport{}
	var readErrs error
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.CheckedCount++

		rc, err := v.blobs.Open(row.BlobPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				report.MissingFiles = append(report.MissingFiles, MissingFile{
					UUID: row.UUID.String(),
					Path: row.BlobPath,
				})
				continue
			}
			readErrs = multierr.Append(readErrs, err)
			continue
		}
		digest, _, err := hashutil.Sum(rc)
		rc.Close()
		if err != nil {
			readErrs = multierr.Append(readErrs, err)
			continue
		}

		if digest == row.Hash {
			report.CorrectCount++
		} else {
			report.Mismatches = append(report.Mismatches, HashMismatch{
				UUID:     row.UUID.String(),
				Path:     row.BlobPath,
				Expected: row.Hash,
				Observed: digest,
			})
		}

		if len(rows) > 0 && (i+1)%100 == 0 {
			progress(float64(i+1)/float64(len(rows))*100, "validating checksums", map[string]any{
				"checked": i + 1,
				"total":   len(rows),
			})
		}
	}

	progress(100, "done", map[string]any{
		"checked_count": report.CheckedCount,
		"correct_count": report.CorrectCount,
		"mismatches":    len(report.Mismatches),
		"missing":       len(report.MissingFiles),
	})
	return report, readErrs
}
