// Package pgstore implements the database.Store contract on PostgreSQL,
// for hosted deployments that outgrow the embedded SQLite store.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/callaudit/callaudit/internal/call"
	"github.com/callaudit/callaudit/internal/database"
	"github.com/callaudit/callaudit/internal/database/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const saveWorkers = 4

// Store implements database.Store using PostgreSQL.
type Store struct {
	db        *sql.DB
	batchSize int
}

// New opens a PostgreSQL connection and runs pending migrations.
func New(dsn string, batchSize int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgresql: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgresql: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db, batchSize: batchSize}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	slog.Info("postgresql store opened")
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate runs all pending SQL migration files in order.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version := strings.TrimSuffix(entry.Name(), ".sql")

		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = $1", version).Scan(&count)
		if err != nil {
			return fmt.Errorf("checking migration %s: %w", version, err)
		}
		if count > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", version, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %s: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", version, err)
		}

		slog.Info("applied migration", "version", version)
	}

	return nil
}

// SaveUpload inserts the upload header, then the records in chunked
// batches with ON CONFLICT DO NOTHING dedup.
func (s *Store) SaveUpload(ctx context.Context, agencyID, fileName, sourceFormat string, rawCallCount int, records []call.Record) (*database.SaveResult, error) {
	uploadID := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (id, agency_id, file_name, source_format, raw_call_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uploadID, agencyID, fileName, sourceFormat, rawCallCount, time.Now(),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting upload: %w", err)
	}

	res := &database.SaveResult{UploadID: uploadID}
	batches := database.RunBatches(ctx, records, s.batchSize, saveWorkers, func(ctx context.Context, batch []call.Record) (int, int, error) {
		return s.insertBatch(ctx, uploadID, agencyID, batch)
	})
	for _, br := range batches {
		if br.Err != nil {
			res.FailedBatches++
			slog.Error("batch insert failed", "upload_id", uploadID, "error", br.Err)
			continue
		}
		res.RecordsInserted += br.Inserted
		res.DuplicatesSkipped += br.Skipped
	}
	return res, nil
}

func (s *Store) insertBatch(ctx context.Context, uploadID, agencyID string, batch []call.Record) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning batch transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO call_records
		 (upload_id, agency_id, agent_name, call_start, duration_seconds, direction, contact_name, contact_phone, result)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (agency_id, agent_name, call_start, direction, contact_phone) DO NOTHING`)
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

// ListUploads returns the agency's uploads, newest first.
func (s *Store) ListUploads(ctx context.Context, agencyID string) ([]models.Upload, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agency_id, file_name, source_format, raw_call_count, created_at,
		 (SELECT COUNT(*) FROM call_records WHERE upload_id = uploads.id)
		 FROM uploads WHERE agency_id = $1 ORDER BY created_at DESC, id`, agencyID,
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
func (s *Store) GetUpload(ctx context.Context, uploadID string) (*models.Upload, error) {
	var u models.Upload
	err := s.db.QueryRowContext(ctx,
		`SELECT id, agency_id, file_name, source_format, raw_call_count, created_at,
		 (SELECT COUNT(*) FROM call_records WHERE upload_id = uploads.id)
		 FROM uploads WHERE id = $1`, uploadID,
	).Scan(&u.ID, &u.AgencyID, &u.FileName, &u.SourceFormat, &u.RawCallCount, &u.CreatedAt, &u.RecordCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning upload: %w", err)
	}
	return &u, nil
}

// GetRecords hydrates the canonical records stored under the upload.
func (s *Store) GetRecords(ctx context.Context, uploadID string) ([]call.Record, string, error) {
	var sourceFormat string
	err := s.db.QueryRowContext(ctx,
		`SELECT source_format FROM uploads WHERE id = $1`, uploadID,
	).Scan(&sourceFormat)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("looking up upload: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_name, call_start, duration_seconds, direction, contact_name, contact_phone, result
		 FROM call_records WHERE upload_id = $1
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

// DeleteUpload removes the upload; records cascade.
func (s *Store) DeleteUpload(ctx context.Context, uploadID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = $1`, uploadID)
	if err != nil {
		return fmt.Errorf("deleting upload: %w", err)
	}
	return nil
}

// CountUploads returns the total number of stored uploads.
func (s *Store) CountUploads(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM uploads`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting uploads: %w", err)
	}
	return count, nil
}

// CountRecordsByDirection returns stored record counts keyed by direction.
func (s *Store) CountRecordsByDirection(ctx context.Context) (map[string]int64, error) {
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

// Ensure Store satisfies the database.Store contract.
var _ database.Store = (*Store)(nil)
