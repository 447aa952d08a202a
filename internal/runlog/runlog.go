// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package runlog writes per-run artifacts to a timestamped folder:
// candidate dumps, the documents sent to OSTI, and the responses that
// came back. Operators diff these folders when a run misbehaves.
package runlog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pdiddy/osti-reporter/internal/source"
	"github.com/pdiddy/osti-reporter/pkg/types"
)

// Log is one run's log folder.
type Log struct {
	dir  string
	full bool
}

// New creates a timestamped folder under parent and returns the log.
// When full is false the bulky dumps (staging rows, candidate tables)
// are skipped and only submissions, responses, and the digest are kept.
func New(parent string, full bool, now time.Time) (*Log, error) {
	if parent == "" {
		parent = "logs"
	}
	dir := filepath.Join(parent, now.Format("2006-01-02-15-04-05"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating run log folder: %w", err)
	}
	return &Log{dir: dir, full: full}, nil
}

// Dir returns the run's log folder path.
func (l *Log) Dir() string { return l.dir }

// WriteStagingRows dumps the staging snapshot to staging_rows.csv.
// Skipped unless full logging is on.
func (l *Log) WriteStagingRows(rows []source.StagedRow) error {
	if !l.full {
		return nil
	}

	records := [][]string{{
		"elements_id", "osti_id", "doi", "report_number", "eschol_id",
		"ark", "media_id", "media_file_id", "media_response_code",
		"filename", "file_size",
	}}
	for _, r := range rows {
		records = append(records, []string{
			strconv.FormatInt(r.ElementsID, 10),
			formatInt64Ptr(r.OSTIID),
			r.DOI,
			r.ReportNumber,
			r.EScholID,
			r.Ark,
			formatInt64Ptr(r.MediaID),
			formatInt64Ptr(r.MediaFileID),
			formatIntPtr(r.MediaResponseCode),
			r.Filename,
			formatInt64Ptr(r.FileSize),
		})
	}
	return l.writeCSV("staging_rows.csv", records)
}

// WriteCandidates dumps a candidate query result to <name>.csv.
// Skipped unless full logging is on.
func (l *Log) WriteCandidates(name string, records []types.PublicationRecord) error {
	if !l.full {
		return nil
	}

	rows := [][]string{{
		"elements_id", "title", "type", "publication_date", "ark",
		"eschol_id", "doi", "report_number", "file_url", "osti_id",
	}}
	for _, r := range records {
		rows = append(rows, []string{
			strconv.FormatInt(r.ElementsID, 10),
			r.Title,
			string(r.Type),
			r.PublicationDate,
			r.Ark,
			r.EScholID,
			r.DOI,
			r.ReportNumber,
			r.FileURL,
			strconv.FormatInt(r.OSTIID, 10),
		})
	}
	return l.writeCSV(name+".csv", rows)
}

// WriteSubmission saves the document sent for one publication.
func (l *Log) WriteSubmission(elementsID int64, doc types.SubmissionDocument) error {
	return l.writeJSON(fmt.Sprintf("submission-%d.json", elementsID), doc)
}

// WriteOutcome saves the registry's response for one publication. The
// phase distinguishes metadata from media responses.
func (l *Log) WriteOutcome(elementsID int64, phase string, outcome types.SubmissionOutcome) error {
	return l.writeJSON(fmt.Sprintf("response-%s-%d.json", phase, elementsID), outcome)
}

// WriteDigest saves the run's final summary as digest.json.
func (l *Log) WriteDigest(digest any) error {
	return l.writeJSON("digest.json", digest)
}

func (l *Log) writeCSV(name string, rows [][]string) error {
	f, err := os.Create(filepath.Join(l.dir, name))
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func (l *Log) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(l.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func formatInt64Ptr(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
