package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/callaudit/callaudit/internal/call"
	"github.com/callaudit/callaudit/internal/database/models"
)

// saveWorkers bounds batch-insert concurrency. SQLite serializes on its
// single writer connection; the bound matters for the Postgres store and
// keeps progress reporting incremental on large files.
const saveWorkers = 4

// sqliteStore implements Store on SQLite.
type sqliteStore struct {
	db        *DB
	batchSize int
}

// NewStore creates the SQLite-backed Store. batchSize bounds how many
// records go into one insert transaction.
func NewStore(db *DB, batchSize int) Store {
	return &sqliteStore{db: db, batchSize: batchSize}
}

// SaveUpload inserts the upload header, then persists the records in
// chunked batches. Duplicate records (same agency dedup key) are skipped
// and counted; failed batches are aggregated, not fatal.
func (s *sqliteStore) SaveUpload(ctx context.Context, agencyID, fileName, sourceFormat string, rawCallCount int, records []call.Record) (*SaveResult, error) {
	up := models.Upload{
		ID:           uuid.NewString(),
		AgencyID:     agencyID,
		FileName:     fileName,
		SourceFormat: sourceFormat,
		RawCallCount: rawCallCount,
		CreatedAt:    time.Now(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (id, agency_id, file_name, source_format, raw_call_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		up.ID, up.AgencyID, up.FileName, up.SourceFormat, up.RawCallCount, up.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting upload: %w", err)
	}

	res := &SaveResult{UploadID: up.ID}
	batches := RunBatches(ctx, records, s.batchSize, saveWorkers, func(ctx context.Context, batch []call.Record) (int, int, error) {
		return s.insertBatch(ctx, up.ID, agencyID, batch)
	})
	for _, br := range batches {
		if br.Err != nil {
			res.FailedBatches++
			slog.Error("batch insert failed", "upload_id", up.ID, "error", br.Err)
			continue
		}
		res.RecordsInserted += br.Inserted
		res.DuplicatesSkipped += br.Skipped
	}
	return res, nil
}

// insertBatch inserts one chunk of records in a single transaction,
// counting inserts and dedup skips via rows-affected.
func (s *sqliteStore) insertBatch(ctx context.Context, uploadID, agencyID string, batch []call.Record) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning batch transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO call_records
		 (upload_id, agency_id, agent_name, call_start, duration_seconds, direction, contact_name, contact_phone, result)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("preparing record insert: %w", err)
	}
	defer stmt.Close()

	inserted, skipped := 0, 0
	for _, r := range batch {
		result, err := stmt.ExecContext(ctx,
			uploadID, agencyID, r.AgentName, r.CallStart.Format(call.TimestampLayout),
			r.DurationSeconds, string(r.Direction), r.ContactName, r.ContactPhone, r.Result,
		)
		if err != nil {
			return 0, 0, fmt.Errorf("inserting call record: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, 0, fmt.Errorf("reading rows affected: %w", err)
		}
		if n > 0 {
			inserted++
		} else {
			skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("committing batch: %w", err)
	}
	return inserted, skipped, nil
}

// ListUploads returns the agency's uploads, newest first, each with the
// count of records stored under it.
func (s *sqliteStore) ListUploads(ctx context.Context, agencyID string) ([]models.Upload, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agency_id, file_name, source_format, raw_call_count, created_at,
		 (SELECT COUNT(*) FROM call_records WHERE upload_id = uploads.id)
		 FROM uploads WHERE agency_id = ? ORDER BY created_at DESC, id`, agencyID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing uploads: %w", err)
	}
	defer rows.Close()

	var uploads []models.Upload
	for rows.Next() {
		var u models.Upload
		if err := rows.Scan(&u.ID, &u.AgencyID, &u.FileName, &u.SourceFormat,
			&u.RawCallCount, &u.CreatedAt, &u.RecordCount); err != nil {
			return nil, fmt.Errorf("scanning upload row: %w", err)
		}
		uploads = append(uploads, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating upload rows: %w", err)
	}
	return uploads, nil
}

// GetUpload returns one upload header, or (nil, nil) when not found.
func (s *sqliteStore) GetUpload(ctx context.Context, uploadID string) (*models.Upload, error) {
	var u models.Upload
	err := s.db.QueryRowContext(ctx,
		`SELECT id, agency_id, file_name, source_format, raw_call_count, created_at,
		 (SELECT COUNT(*) FROM call_records WHERE upload_id = uploads.id)
		 FROM uploads WHERE id = ?`, uploadID,
	).Scan(&u.ID, &u.AgencyID, &u.FileName, &u.SourceFormat, &u.RawCallCount, &u.CreatedAt, &u.RecordCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning upload: %w", err)
	}
	return &u, nil
}

// GetRecords hydrates every canonical record stored under the upload. No
// re-normalization happens: the stored form is already canonical.
func (s *sqliteStore) GetRecords(ctx context.Context, uploadID string) ([]call.Record, string, error) {
	var sourceFormat string
	err := s.db.QueryRowContext(ctx,
		`SELECT source_format FROM uploads WHERE id = ?`, uploadID,
	).Scan(&sourceFormat)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("looking up upload: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_name, call_start, duration_seconds, direction, contact_name, contact_phone, result
		 FROM call_records WHERE upload_id = ?
		 ORDER BY call_start, direction, contact_phone, agent_name`, uploadID,
	)
	if err != nil {
		return nil, "", fmt.Errorf("loading call records: %w", err)
	}
	defer rows.Close()

	var records []call.Record
	for rows.Next() {
		var r call.Record
		var start, direction string
		if err := rows.Scan(&r.AgentName, &start, &r.DurationSeconds, &direction,
			&r.ContactName, &r.ContactPhone, &r.Result); err != nil {
			return nil, "", fmt.Errorf("scanning call record row: %w", err)
		}
		r.CallStart, err = time.ParseInLocation(call.TimestampLayout, start, time.Local)
		if err != nil {
			return nil, "", fmt.Errorf("parsing stored call start %q: %w", start, err)
		}
		r.Direction = call.Direction(direction)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating call record rows: %w", err)
	}
	return records, sourceFormat, nil
}

// DeleteUpload removes the upload header; the records cascade in the same
// statement's transaction.
func (s *sqliteStore) DeleteUpload(ctx context.Context, uploadID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, uploadID)
	if err != nil {
		return fmt.Errorf("deleting upload: %w", err)
	}
	return nil
}

// CountUploads returns the total number of stored uploads.
func (s *sqliteStore) CountUploads(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM uploads`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting uploads: %w", err)
	}
	return count, nil
}

// CountRecordsByDirection returns stored record counts keyed by direction.
func (s *sqliteStore) CountRecordsByDirection(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT direction, COUNT(*) FROM call_records GROUP BY direction`)
	if err != nil {
		return nil, fmt.Errorf("counting call records: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var dir string
		var n int64
		if err := rows.Scan(&dir, &n); err != nil {
			return nil, fmt.Errorf("scanning record count row: %w", err)
		}
		counts[dir] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating record count rows: %w", err)
	}
	return counts, nil
}

// Close closes the underlying database.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}
