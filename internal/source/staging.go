// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pdiddy/osti-reporter/pkg/types"
)

// stagingTable is the connection-scoped temporary table holding the
// ledger snapshot for the duration of a run.
const stagingTable = "osti_submitted"

const defaultStagingBatchSize = 500

// StagedRow is one snapshot row as read back from the staging table.
// The run log dumps these when full logging is enabled.
type StagedRow struct {
	ElementsID        int64
	OSTIID            *int64
	DOI               string
	ReportNumber      string
	EScholID          string
	Ark               string
	ModifiedWhen      *time.Time
	MediaID           *int64
	MediaFileID       *int64
	MediaResponseCode *int
	Filename          string
	FileSize          *int64
}

// LoadStaging creates the staging snapshot and bulk-inserts the given
// ledger entries in batches, each batch in its own transaction. After
// loading it verifies the row count against len(entries) and fails the
// run on any mismatch: candidate queries anti-join against this table,
// and a partial snapshot would resubmit already-reported publications.
func (r *Registry) LoadStaging(ctx context.Context, entries []types.LedgerEntry) error {
	create := fmt.Sprintf(`CREATE TEMP TABLE %s (
		elements_id INTEGER PRIMARY KEY,
		osti_id INTEGER,
		doi TEXT,
		report_number TEXT,
		eschol_id TEXT,
		ark TEXT,
		pr_modified_when TIMESTAMP,
		media_id INTEGER,
		media_file_id INTEGER,
		media_response_code INTEGER,
		filename TEXT,
		file_size INTEGER
	)`, stagingTable)

	if _, err := r.conn.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("creating staging table: %w", err)
	}

	batchSize := r.cfg.StagingBatchSize
	if batchSize <= 0 {
		batchSize = defaultStagingBatchSize
	}

	for start := 0; start < len(entries); start += batchSize {
		end := start + batchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := r.loadStagingBatch(ctx, entries[start:end]); err != nil {
			return fmt.Errorf("staging batch at row %d: %w", start, err)
		}
	}

	count, err := r.StagingCount(ctx)
	if err != nil {
		return err
	}
	if count != len(entries) {
		return fmt.Errorf("staging table holds %d rows, expected %d", count, len(entries))
	}
	return nil
}

func (r *Registry) loadStagingBatch(ctx context.Context, entries []types.LedgerEntry) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	insert := fmt.Sprintf(`INSERT INTO %s (
		elements_id, osti_id, doi, report_number, eschol_id, ark,
		pr_modified_when, media_id, media_file_id, media_response_code,
		filename, file_size
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, stagingTable)

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("preparing staging insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.ExecContext(ctx,
			e.ElementsID,
			e.OSTIID,
			NormalizeNull(e.DOI),
			NormalizeNull(e.ReportNumber),
			NormalizeNull(e.EScholID),
			NormalizeNull(e.Ark),
			e.ModifiedWhen,
			e.MediaID,
			e.MediaFileID,
			e.MediaResponseCode,
			NormalizeNull(e.Filename),
			e.FileSize,
		)
		if err != nil {
			return fmt.Errorf("inserting staging row %d: %w", e.ElementsID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing staging batch: %w", err)
	}
	return nil
}

// StagingCount returns the number of rows in the staging snapshot.
func (r *Registry) StagingCount(ctx context.Context) (int, error) {
	var count int
	row := r.conn.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", stagingTable))
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("counting staging rows: %w", err)
	}
	return count, nil
}

// ReadStaging returns the full staging snapshot ordered by Elements ID,
// for full-logging dumps and for tests.
func (r *Registry) ReadStaging(ctx context.Context) ([]StagedRow, error) {
	query := fmt.Sprintf(`SELECT elements_id, osti_id, doi, report_number,
		eschol_id, ark, pr_modified_when, media_id, media_file_id,
		media_response_code, filename, file_size
		FROM %s ORDER BY elements_id`, stagingTable)

	rows, err := r.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reading staging table: %w", err)
	}
	defer rows.Close()

	var staged []StagedRow
	for rows.Next() {
		var sr StagedRow
		var doi, reportNumber, escholID, ark, filename sql.NullString
		err := rows.Scan(&sr.ElementsID, &sr.OSTIID, &doi, &reportNumber,
			&escholID, &ark, &sr.ModifiedWhen, &sr.MediaID, &sr.MediaFileID,
			&sr.MediaResponseCode, &filename, &sr.FileSize)
		if err != nil {
			return nil, fmt.Errorf("scanning staging row: %w", err)
		}
		sr.DOI = doi.String
		sr.ReportNumber = reportNumber.String
		sr.EScholID = escholID.String
		sr.Ark = ark.String
		sr.Filename = filename.String
		staged = append(staged, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading staging rows: %w", err)
	}
	return staged, nil
}

// NormalizeNull maps the empty string and the literal "None" (a null
// spelling that leaks out of upstream exports) to SQL NULL. All other
// values bind as-is.
func NormalizeNull(s string) any {
	if s == "" || s == "None" {
		return nil
	}
	return s
}
