// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source reads candidate publications from the Elements reporting
// database and computes the not-yet-submitted set against a staging
// snapshot of the ledger.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/osti-reporter/pkg/types"
)

// candidateView is the reporting-database view that flattens Elements
// publication, journal, and file-store tables into one OSTI candidate row
// per publication. The view is maintained alongside this program.
const candidateView = "osti_pub_candidates"

// candidateColumns is the select list shared by all candidate queries.
// Order must match scanRecord.
const candidateColumns = `c.elements_id, c.title, c.abstract, c.pub_type,
	c.journal_name, c.volume, c.issue, c.conference_name,
	c.reporting_date, c.ark, c.eschol_id, c.doi, c.report_number,
	c.file_url, c.filename, c.file_extension, c.file_size,
	c.authors, c.grants, c.pr_modified_when`

// Registry provides read access to the source registry. The underlying
// connection is held open for the whole run: the staging snapshot lives
// in a connection-scoped temporary table, so the diff and the candidate
// queries must see the same session.
type Registry struct {
	// conn pins a single connection out of the pool for the session.
	conn *sql.Conn
	db   *sql.DB
	cfg  types.SourceConfig
}

// Filter narrows a candidate query.
type Filter struct {
	// IDs restricts results to specific Elements publication IDs
	// (individual-item override mode). Empty means no restriction.
	IDs []int64
}

// Open connects to the reporting database and pins one connection for
// the run. A connectivity failure here is fatal for the run; nothing has
// been submitted yet.
func Open(ctx context.Context, cfg types.SourceConfig) (*Registry, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite3"
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening source registry: %w", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to source registry: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("pinging source registry: %w", err)
	}

	return &Registry{conn: conn, db: db, cfg: cfg}, nil
}

// Close releases the pinned connection, which also drops the staging
// snapshot.
func (r *Registry) Close() error {
	if err := r.conn.Close(); err != nil {
		r.db.Close()
		return err
	}
	return r.db.Close()
}

// QueryNewCandidates returns publications present in the reporting
// database but absent from the staging snapshot, in reporting order.
// LoadStaging must have run first.
func (r *Registry) QueryNewCandidates(ctx context.Context, f Filter) ([]types.PublicationRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s c
		WHERE NOT EXISTS (
			SELECT 1 FROM %s s WHERE s.elements_id = c.elements_id
		)`, candidateColumns, candidateView, stagingTable)
	query, args := appendIDFilter(query, f)
	query += " ORDER BY c.pr_modified_when, c.elements_id"

	return r.queryRecords(ctx, query, args, false)
}

// QueryMetadataChanges returns already-submitted publications whose
// source metadata changed after the ledger's recorded modification
// timestamp. Results carry the registry-assigned OSTI ID from the
// snapshot.
func (r *Registry) QueryMetadataChanges(ctx context.Context, f Filter) ([]types.PublicationRecord, error) {
	query := fmt.Sprintf(`SELECT %s, s.osti_id, s.media_id, s.media_file_id
		FROM %s c
		JOIN %s s ON s.elements_id = c.elements_id
		WHERE s.osti_id IS NOT NULL
		  AND c.pr_modified_when > s.pr_modified_when`,
		candidateColumns, candidateView, stagingTable)
	query, args := appendIDFilter(query, f)
	query += " ORDER BY c.pr_modified_when, c.elements_id"

	return r.queryRecords(ctx, query, args, true)
}

// QueryAttachmentChanges returns already-submitted publications whose
// PDF was replaced (different filename or size) or whose previous media
// submission failed, so the attachment must be sent again.
func (r *Registry) QueryAttachmentChanges(ctx context.Context, f Filter) ([]types.PublicationRecord, error) {
	query := fmt.Sprintf(`SELECT %s, s.osti_id, s.media_id, s.media_file_id
		FROM %s c
		JOIN %s s ON s.elements_id = c.elements_id
		WHERE s.osti_id IS NOT NULL
		  AND c.file_url IS NOT NULL
		  AND (s.media_id IS NULL
		       OR s.media_response_code >= 300
		       OR c.filename <> s.filename
		       OR c.file_size <> s.file_size)`,
		candidateColumns, candidateView, stagingTable)
	query, args := appendIDFilter(query, f)
	query += " ORDER BY c.pr_modified_when, c.elements_id"

	return r.queryRecords(ctx, query, args, true)
}

// appendIDFilter adds the individual-item override to a query.
func appendIDFilter(query string, f Filter) (string, []any) {
	if len(f.IDs) == 0 {
		return query, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.IDs)), ",")
	query += fmt.Sprintf(" AND c.elements_id IN (%s)", placeholders)
	args := make([]any, len(f.IDs))
	for i, id := range f.IDs {
		args[i] = id
	}
	return query, args
}

func (r *Registry) queryRecords(ctx context.Context, query string, args []any, withLedger bool) ([]types.PublicationRecord, error) {
	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying source registry: %w", err)
	}
	defer rows.Close()

	var records []types.PublicationRecord
	for rows.Next() {
		rec, err := r.scanRecord(rows, withLedger)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading source registry rows: %w", err)
	}
	return records, nil
}

// scanRecord maps one candidate row to a PublicationRecord, resolving
// the source's null sentinels ("None", empty string, SQL NULL) to empty
// strings exactly once, at this boundary.
func (r *Registry) scanRecord(rows *sql.Rows, withLedger bool) (types.PublicationRecord, error) {
	var rec types.PublicationRecord
	var (
		abstract, journalName, volume, issue sql.NullString
		conferenceName, doi, reportNumber    sql.NullString
		fileURL, filename, fileExt           sql.NullString
		authors, grants, pubType             sql.NullString
		fileSize                             sql.NullInt64
		ostiID, mediaID, mediaFileID         sql.NullInt64
	)

	dest := []any{
		&rec.ElementsID, &rec.Title, &abstract, &pubType,
		&journalName, &volume, &issue, &conferenceName,
		&rec.PublicationDate, &rec.Ark, &rec.EScholID, &doi, &reportNumber,
		&fileURL, &filename, &fileExt, &fileSize,
		&authors, &grants, &rec.ModifiedWhen,
	}
	if withLedger {
		dest = append(dest, &ostiID, &mediaID, &mediaFileID)
	}

	if err := rows.Scan(dest...); err != nil {
		return rec, fmt.Errorf("scanning candidate row: %w", err)
	}

	rec.Type = types.PublicationType(cleanString(pubType))
	rec.Abstract = cleanString(abstract)
	rec.JournalName = cleanString(journalName)
	rec.Volume = cleanString(volume)
	rec.Issue = cleanString(issue)
	rec.ConferenceName = cleanString(conferenceName)
	rec.DOI = cleanString(doi)
	rec.ReportNumber = cleanString(reportNumber)
	rec.FileURL = cleanString(fileURL)
	rec.Filename = cleanString(filename)
	rec.FileExtension = cleanString(fileExt)
	rec.AuthorsJSON = cleanString(authors)
	rec.GrantsJSON = cleanString(grants)
	if fileSize.Valid {
		rec.FileSize = fileSize.Int64
	}
	if ostiID.Valid {
		rec.OSTIID = ostiID.Int64
	}
	if mediaID.Valid {
		rec.MediaID = mediaID.Int64
	}
	if mediaFileID.Valid {
		rec.MediaFileID = mediaFileID.Int64
	}

	rec.EScholURL = AccessURL(r.cfg.Environment, rec.EScholID)
	return rec, nil
}

// cleanString resolves the reporting database's assorted null spellings.
func cleanString(s sql.NullString) string {
	if !s.Valid {
		return ""
	}
	v := strings.TrimSpace(s.String)
	if v == "None" {
		return ""
	}
	return v
}

// AccessURL derives the public eScholarship URL for an item. The QA
// environment points at the staging front end so test submissions never
// embed production links.
func AccessURL(env types.Environment, escholID string) string {
	if env == types.EnvQA {
		return "https://pub-jschol-stg.escholarship.org/uc/item/" + escholID
	}
	return "https://escholarship.org/uc/item/" + escholID
}
