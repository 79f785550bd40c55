package database

import (
	"context"
	"sync"

	"github.com/callaudit/callaudit/internal/call"
	"github.com/callaudit/callaudit/internal/database/models"
)

// SaveResult reports the outcome of persisting one upload's record set.
// A record whose dedup key already exists for the agency is skipped, not
// erroneous, so re-uploading the same export is idempotent.
type SaveResult struct {
	UploadID          string
	RecordsInserted   int
	DuplicatesSkipped int
	FailedBatches     int
}

// Store is the persistence contract the gap engine's orchestration layer
// consumes. Implemented by the SQLite store here and the Postgres store
// in pgstore.
type Store interface {
	// SaveUpload creates an upload header and persists records under it in
	// chunked batches. Individual batch failures are aggregated into
	// FailedBatches rather than aborting the save.
	SaveUpload(ctx context.Context, agencyID, fileName, sourceFormat string, rawCallCount int, records []call.Record) (*SaveResult, error)
	// ListUploads returns the agency's uploads, newest first.
	ListUploads(ctx context.Context, agencyID string) ([]models.Upload, error)
	// GetUpload returns one upload header, or (nil, nil) if it does not exist.
	GetUpload(ctx context.Context, uploadID string) (*models.Upload, error)
	// GetRecords hydrates the canonical records stored under an upload,
	// along with the upload's source format.
	GetRecords(ctx context.Context, uploadID string) ([]call.Record, string, error)
	// DeleteUpload removes an upload and its records atomically.
	DeleteUpload(ctx context.Context, uploadID string) error
	// CountUploads returns the total number of stored uploads.
	CountUploads(ctx context.Context) (int64, error)
	// CountRecordsByDirection returns stored record counts keyed by direction.
	CountRecordsByDirection(ctx context.Context) (map[string]int64, error)
	Close() error
}

// BatchResult is the per-batch outcome collected by RunBatches.
type BatchResult struct {
	Inserted int
	Skipped  int
	Err      error
}

// RunBatches splits records into chunks of batchSize and runs fn over the
// chunks with at most workers concurrent calls, collecting one result per
// batch in order. Individual batch errors are recorded, never swallowed,
// and do not stop the remaining batches.
func RunBatches(ctx context.Context, records []call.Record, batchSize, workers int, fn func(ctx context.Context, batch []call.Record) (inserted, skipped int, err error)) []BatchResult {
	if batchSize < 1 {
		batchSize = 1
	}
	if workers < 1 {
		workers = 1
	}

	var batches [][]call.Record
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[start:end])
	}

	results := make([]BatchResult, len(batches))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, batch := range batches {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, batch []call.Record) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				results[i] = BatchResult{Err: err}
				return
			}
			inserted, skipped, err := fn(ctx, batch)
			results[i] = BatchResult{Inserted: inserted, Skipped: skipped, Err: err}
		}(i, batch)
	}
	wg.Wait()

	return results
}
