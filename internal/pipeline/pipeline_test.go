// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"

	"github.com/pdiddy/osti-reporter/internal/elink"
	"github.com/pdiddy/osti-reporter/internal/ledger"
	"github.com/pdiddy/osti-reporter/internal/runlog"
	"github.com/pdiddy/osti-reporter/internal/source"
	"github.com/pdiddy/osti-reporter/pkg/types"
)

// fakeELink counts calls per endpoint and mints sequential OSTI IDs.
type fakeELink struct {
	mux           *http.ServeMux
	server        *httptest.Server
	metadataPosts atomic.Int32
	metadataPuts  atomic.Int32
	mediaPosts    atomic.Int32
	mediaPuts     atomic.Int32
	nextOSTIID    atomic.Int64

	failMetadata bool
	mediaGone    bool
	failFiles    bool
}

func newFakeELink(t *testing.T) *fakeELink {
	f := &fakeELink{mux: http.NewServeMux()}
	f.nextOSTIID.Store(90000)

	f.mux.HandleFunc("/files/", func(w http.ResponseWriter, _ *http.Request) {
		if f.failFiles {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		io.WriteString(w, "%PDF-1.4 fake body")
	})
	f.mux.HandleFunc("/records/submit", func(w http.ResponseWriter, _ *http.Request) {
		f.metadataPosts.Add(1)
		if f.failMetadata {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"errors":[{"detail":"rejected"}]}`)
			return
		}
		fmt.Fprintf(w, `{"osti_id": %d}`, f.nextOSTIID.Add(1))
	})
	f.mux.HandleFunc("/records/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		f.metadataPuts.Add(1)
		fmt.Fprint(w, `{"osti_id": 90001}`)
	})
	f.mux.HandleFunc("/media/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			f.mediaPosts.Add(1)
		case http.MethodPut:
			f.mediaPuts.Add(1)
			if f.mediaGone {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"errors":[{"detail":"media not on file"}]}`)
				return
			}
		}
		fmt.Fprint(w, `{"files":[{"media_id": 7001, "media_file_id": 8001}]}`)
	})

	f.server = httptest.NewServer(f.mux)
	t.Cleanup(f.server.Close)
	return f
}

type fixture struct {
	pipeline *Pipeline
	store    *ledger.Store
	elink    *fakeELink
	runDir   string
	srcDSN   string
}

func newFixture(t *testing.T, cfg types.ReporterConfig) *fixture {
	t.Helper()

	f := &fixture{elink: newFakeELink(t)}
	f.srcDSN = filepath.Join(t.TempDir(), "source.db")
	seedSourceSchema(t, f.srcDSN)

	var err error
	f.store, err = ledger.OpenWithDialector(sqlite.Open(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { f.store.Close() })

	cfg.Source.Driver = "sqlite3"
	cfg.Source.DSN = f.srcDSN
	cfg.ELink.BaseURL = f.elink.server.URL
	cfg.ELink.Token = "test-token"
	cfg.Ledger.WriteInterval = time.Millisecond
	if cfg.Transform.SiteOwnershipCode == "" {
		cfg.Transform.SiteOwnershipCode = "LBNLSCH"
	}

	src, err := source.Open(context.Background(), cfg.Source)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	runDir := t.TempDir()
	cfg.Run.LogDir = runDir
	runLog, err := runlog.New(runDir, cfg.Run.FullLogging, time.Now())
	require.NoError(t, err)
	f.runDir = runLog.Dir()

	f.pipeline = New(cfg, src, f.store, elink.NewClient(cfg.ELink), runLog, zap.NewNop())
	return f
}

func seedSourceSchema(t *testing.T, dsn string) {
	t.Helper()
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE osti_pub_candidates (
		elements_id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		abstract TEXT,
		pub_type TEXT,
		journal_name TEXT,
		volume TEXT,
		issue TEXT,
		conference_name TEXT,
		reporting_date TEXT,
		ark TEXT,
		eschol_id TEXT,
		doi TEXT,
		report_number TEXT,
		file_url TEXT,
		filename TEXT,
		file_extension TEXT,
		file_size INTEGER,
		authors TEXT,
		grants TEXT,
		pr_modified_when TIMESTAMP
	)`)
	require.NoError(t, err)
}

func (f *fixture) seedCandidate(t *testing.T, id int64, modified time.Time) {
	t.Helper()
	db, err := sql.Open("sqlite3", f.srcDSN)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`INSERT INTO osti_pub_candidates (
		elements_id, title, abstract, pub_type, journal_name,
		reporting_date, ark, eschol_id, doi, file_url, filename,
		file_extension, file_size, authors, grants, pr_modified_when
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		fmt.Sprintf("Publication %d", id),
		"An abstract.",
		"Journal article",
		"Physical Review D",
		"2026-01-15",
		fmt.Sprintf("ark:/13030/qt%07d", id),
		fmt.Sprintf("qt%07d", id),
		fmt.Sprintf("10.1103/test.%d", id),
		f.elink.server.URL+fmt.Sprintf("/files/%d.pdf", id),
		fmt.Sprintf("%d.pdf", id),
		"pdf",
		1024,
		`[{"last_name":"Okafor","first_name":"Ada"}]`,
		"[]",
		modified,
	)
	require.NoError(t, err)
}

func (f *fixture) seedLedger(t *testing.T, id, ostiID int64, modified time.Time) {
	t.Helper()
	size := int64(1024)
	code := 200
	mediaID := int64(7001)
	fileID := int64(8001)
	entry := types.LedgerEntry{
		ElementsID:        id,
		OSTIID:            &ostiID,
		EScholID:          fmt.Sprintf("qt%07d", id),
		Ark:               fmt.Sprintf("ark:/13030/qt%07d", id),
		ModifiedWhen:      &modified,
		Filename:          fmt.Sprintf("%d.pdf", id),
		FileSize:          &size,
		MediaResponseCode: &code,
		MediaID:           &mediaID,
		MediaFileID:       &fileID,
	}
	require.NoError(t, f.store.Insert(context.Background(), &entry))
}

// secondPipeline builds a fresh pipeline over the same source and
// ledger, the way a later scheduled run would.
func (f *fixture) secondPipeline(t *testing.T) *Pipeline {
	t.Helper()
	cfg := f.pipeline.cfg
	src, err := source.Open(context.Background(), cfg.Source)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	runLog, err := runlog.New(t.TempDir(), false, time.Now())
	require.NoError(t, err)
	return New(cfg, src, f.store, elink.NewClient(cfg.ELink), runLog, zap.NewNop())
}

var baseTime = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func TestRunReportEndToEnd(t *testing.T) {
	f := newFixture(t, types.ReporterConfig{})

	for i := int64(1); i <= 3; i++ {
		f.seedCandidate(t, i, baseTime)
	}
	f.seedLedger(t, 2, 80002, baseTime)

	digest, err := f.pipeline.RunReport(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, digest.Candidates)
	assert.Equal(t, 2, digest.NewMetadata.Attempted)
	assert.Equal(t, 2, digest.NewMetadata.Succeeded)
	assert.Equal(t, 2, digest.NewMedia.Succeeded)
	assert.Equal(t, int32(2), f.elink.metadataPosts.Load())
	assert.Equal(t, int32(2), f.elink.mediaPosts.Load())

	entries, err := f.store.All(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Items 1 and 3 got fresh entries with OSTI and media IDs.
	one, err := f.store.Get(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, one.OSTIID)
	assert.Greater(t, *one.OSTIID, int64(90000))
	require.NotNil(t, one.MediaID)
	assert.Equal(t, int64(7001), *one.MediaID)
	assert.Equal(t, "1.pdf", one.Filename)
}

func TestRunReportIsIdempotentAcrossRuns(t *testing.T) {
	f := newFixture(t, types.ReporterConfig{})
	f.seedCandidate(t, 1, baseTime)

	digest, err := f.pipeline.RunReport(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, digest.NewMetadata.Succeeded)

	// Second run over the same source: the fresh ledger snapshot
	// excludes the item, so nothing is submitted again.
	digest, err = f.secondPipeline(t).RunReport(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, digest.Candidates)
	assert.Equal(t, int32(1), f.elink.metadataPosts.Load(), "no duplicate submission")
}

func TestRunReportFileFetchFailureStillRecordsMetadata(t *testing.T) {
	f := newFixture(t, types.ReporterConfig{})
	f.elink.failFiles = true
	f.seedCandidate(t, 1, baseTime)

	digest, err := f.pipeline.RunReport(context.Background())
	require.NoError(t, err, "a dead file store must not abort the run")

	assert.Equal(t, 1, digest.NewMetadata.Succeeded)
	assert.Equal(t, 1, digest.NewMedia.Attempted)
	assert.Equal(t, []int64{1}, digest.NewMedia.FailedIDs)

	// OSTI acknowledged the metadata POST, so the ledger entry exists
	// with the OSTI ID and a failed media phase.
	entry, err := f.store.Get(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, entry.OSTIID)
	assert.Nil(t, entry.MediaID)

	// The next run sees the entry in its snapshot and does not re-POST
	// metadata OSTI already has.
	digest, err = f.secondPipeline(t).RunReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, digest.Candidates)
	assert.Equal(t, int32(1), f.elink.metadataPosts.Load(), "rerun must not re-POST metadata OSTI already acknowledged")
}

func TestRunReportMetadataFailureSkipsMedia(t *testing.T) {
	f := newFixture(t, types.ReporterConfig{})
	f.elink.failMetadata = true
	f.seedCandidate(t, 1, baseTime)

	digest, err := f.pipeline.RunReport(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, digest.NewMetadata.Attempted)
	assert.Equal(t, 0, digest.NewMetadata.Succeeded)
	assert.Equal(t, []int64{1}, digest.NewMetadata.FailedIDs)
	assert.Equal(t, int32(0), f.elink.mediaPosts.Load(), "media phase must not run")

	// No ledger entry: the publication is still unknown to OSTI.
	entries, err := f.store.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunReportDryRunHaltsBeforeSubmission(t *testing.T) {
	cfg := types.ReporterConfig{}
	cfg.Run.DryRun = true
	f := newFixture(t, cfg)
	f.seedCandidate(t, 1, baseTime)

	digest, err := f.pipeline.RunReport(context.Background())
	require.NoError(t, err)

	assert.True(t, digest.DryRun)
	assert.Equal(t, 1, digest.Candidates)
	assert.Equal(t, int32(0), f.elink.metadataPosts.Load())

	// The document that would have been sent is still logged.
	data, err := os.ReadFile(filepath.Join(f.runDir, "submission-1.json"))
	require.NoError(t, err)
	var doc types.SubmissionDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "1", doc.SiteUniqueID)
}

func TestRunReportHonorsSubmissionLimit(t *testing.T) {
	cfg := types.ReporterConfig{}
	cfg.Run.SubmissionLimit = 2
	f := newFixture(t, cfg)

	for i := int64(1); i <= 5; i++ {
		f.seedCandidate(t, i, baseTime.Add(time.Duration(i)*time.Minute))
	}

	digest, err := f.pipeline.RunReport(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, digest.Candidates)
	assert.Equal(t, 2, digest.NewMetadata.Attempted)
	assert.Equal(t, 3, digest.Deferred)

	// The cap slices in order: the two oldest went through.
	_, err = f.store.Get(context.Background(), 1)
	assert.NoError(t, err)
	_, err = f.store.Get(context.Background(), 2)
	assert.NoError(t, err)
	_, err = f.store.Get(context.Background(), 3)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRunUpdatesMetadata(t *testing.T) {
	f := newFixture(t, types.ReporterConfig{})

	f.seedCandidate(t, 1, baseTime.Add(48*time.Hour)) // modified after submission
	f.seedCandidate(t, 2, baseTime)                   // unchanged
	f.seedLedger(t, 1, 90001, baseTime)
	f.seedLedger(t, 2, 90002, baseTime)

	digest, err := f.pipeline.RunUpdates(context.Background(), true, false)
	require.NoError(t, err)

	assert.Equal(t, 1, digest.Candidates)
	assert.Equal(t, 1, digest.MetadataUpdates.Succeeded)
	assert.Equal(t, int32(1), f.elink.metadataPuts.Load())

	entry, err := f.store.Get(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, entry.ModifiedWhen)
	assert.True(t, entry.ModifiedWhen.Equal(baseTime.Add(48*time.Hour)),
		"timestamp advances so the item drops out of the next diff")
}

func TestRunUpdatesMediaGone(t *testing.T) {
	f := newFixture(t, types.ReporterConfig{})
	f.elink.mediaGone = true

	f.seedCandidate(t, 1, baseTime)
	f.seedLedger(t, 1, 90001, baseTime)

	// Change the stored filename so the attachment diff picks it up.
	outcome := types.SubmissionOutcome{Kind: types.OutcomeOK, StatusCode: 200, MediaID: 7001, MediaFileID: 8001}
	require.NoError(t, f.store.RecordMedia(context.Background(), 1, outcome, "old-name.pdf", 999))

	digest, err := f.pipeline.RunUpdates(context.Background(), false, true)
	require.NoError(t, err)

	assert.Equal(t, 1, digest.Candidates)
	assert.Equal(t, []int64{1}, digest.MediaGoneIDs)
	assert.Equal(t, int32(1), f.elink.mediaPuts.Load())

	entry, err := f.store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, entry.MediaDeleted)
	require.NotNil(t, entry.MediaResponseCode)
	assert.Equal(t, http.StatusNotFound, *entry.MediaResponseCode)

	// The stale IDs are gone, so the next run re-creates the attachment
	// with a fresh POST instead of repeating the doomed PUT.
	assert.Nil(t, entry.MediaID)
	assert.Nil(t, entry.MediaFileID)

	f.elink.mediaGone = false
	digest, err = f.secondPipeline(t).RunUpdates(context.Background(), false, true)
	require.NoError(t, err)

	assert.Equal(t, 1, digest.MediaUpdates.Succeeded)
	assert.Equal(t, int32(1), f.elink.mediaPosts.Load())
	assert.Equal(t, int32(1), f.elink.mediaPuts.Load(), "no second replacement attempt")

	entry, err = f.store.Get(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, entry.MediaID)
	assert.Equal(t, int64(7001), *entry.MediaID)
	assert.False(t, entry.MediaDeleted)
}

func TestRunUpdatesDryRunLogsDocuments(t *testing.T) {
	cfg := types.ReporterConfig{}
	cfg.Run.DryRun = true
	f := newFixture(t, cfg)

	f.seedCandidate(t, 1, baseTime.Add(48*time.Hour))
	f.seedLedger(t, 1, 90001, baseTime)

	digest, err := f.pipeline.RunUpdates(context.Background(), true, false)
	require.NoError(t, err)

	assert.True(t, digest.DryRun)
	assert.Equal(t, 1, digest.Candidates)
	assert.Equal(t, int32(0), f.elink.metadataPuts.Load())

	// The replacement document that would have been sent is logged.
	data, err := os.ReadFile(filepath.Join(f.runDir, "submission-1.json"))
	require.NoError(t, err)
	var doc types.SubmissionDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "1", doc.SiteUniqueID)
}

func TestRunUpdatesMediaRetriesFailedAttachment(t *testing.T) {
	f := newFixture(t, types.ReporterConfig{})

	f.seedCandidate(t, 1, baseTime)

	// Previous media attempt failed: code stored, no media ID.
	ostiID := int64(90001)
	size := int64(1024)
	code := 500
	modified := baseTime
	entry := types.LedgerEntry{
		ElementsID:        1,
		OSTIID:            &ostiID,
		ModifiedWhen:      &modified,
		Filename:          "1.pdf",
		FileSize:          &size,
		MediaResponseCode: &code,
	}
	require.NoError(t, f.store.Insert(context.Background(), &entry))

	digest, err := f.pipeline.RunUpdates(context.Background(), false, true)
	require.NoError(t, err)

	// No stored media ID means a fresh POST, not a replacement PUT.
	assert.Equal(t, int32(1), f.elink.mediaPosts.Load())
	assert.Equal(t, int32(0), f.elink.mediaPuts.Load())
	assert.Equal(t, 1, digest.MediaUpdates.Succeeded)

	got, err := f.store.Get(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, got.MediaID)
	assert.Equal(t, int64(7001), *got.MediaID)
}

func TestRecorderSkipsFailedMetadata(t *testing.T) {
	store, err := ledger.OpenWithDialector(sqlite.Open(":memory:"))
	require.NoError(t, err)
	defer store.Close()

	r := NewRecorder(store, types.LedgerConfig{WriteInterval: time.Millisecond})

	failed := types.SubmissionOutcome{Kind: types.OutcomeFailed, StatusCode: 400}
	pub := types.SubmittedPublication{
		Record:   types.PublicationRecord{ElementsID: 1},
		Metadata: &failed,
	}
	require.NoError(t, r.RecordNewSubmission(context.Background(), pub, ""))

	entries, err := store.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
