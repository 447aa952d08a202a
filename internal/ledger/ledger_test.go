// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/pdiddy/osti-reporter/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenWithDialector(sqlite.Open(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedEntry(t *testing.T, s *Store, elementsID, ostiID int64) types.LedgerEntry {
	t.Helper()
	modified := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	entry := types.LedgerEntry{
		ElementsID:   elementsID,
		OSTIID:       &ostiID,
		EScholID:     "qt1234567",
		Ark:          "ark:/13030/qt1234567",
		DOI:          "10.0001/seed",
		ModifiedWhen: &modified,
	}
	require.NoError(t, s.Insert(context.Background(), &entry))
	return entry
}

func TestInsertRejectsDuplicateElementsID(t *testing.T) {
	s := newTestStore(t)
	seedEntry(t, s, 42, 90042)

	dup := types.LedgerEntry{ElementsID: 42}
	err := s.Insert(context.Background(), &dup)
	assert.Error(t, err)

	entries, err := s.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAllOrdersByElementsID(t *testing.T) {
	s := newTestStore(t)
	seedEntry(t, s, 30, 90030)
	seedEntry(t, s, 10, 90010)
	seedEntry(t, s, 20, 90020)

	entries, err := s.All(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(10), entries[0].ElementsID)
	assert.Equal(t, int64(20), entries[1].ElementsID)
	assert.Equal(t, int64(30), entries[2].ElementsID)
}

func TestUpdateMetadata(t *testing.T) {
	s := newTestStore(t)
	seedEntry(t, s, 1, 90001)

	newModified := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	err := s.UpdateMetadata(context.Background(), 1, newModified, "10.0001/updated", "LBNL-2001234")
	require.NoError(t, err)

	entry, err := s.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "10.0001/updated", entry.DOI)
	assert.Equal(t, "LBNL-2001234", entry.ReportNumber)
	require.NotNil(t, entry.ModifiedWhen)
	assert.True(t, entry.ModifiedWhen.Equal(newModified))
}

func TestUpdateMetadataUnknownEntry(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateMetadata(context.Background(), 999, time.Now(), "", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordMediaSuccess(t *testing.T) {
	s := newTestStore(t)
	seedEntry(t, s, 1, 90001)

	mediaID := int64(7001)
	fileID := int64(8001)
	outcome := types.SubmissionOutcome{
		Kind:        types.OutcomeOK,
		StatusCode:  200,
		MediaID:     mediaID,
		MediaFileID: fileID,
	}
	require.NoError(t, s.RecordMedia(context.Background(), 1, outcome, "paper.pdf", 2048))

	entry, err := s.Get(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, entry.MediaID)
	assert.Equal(t, int64(7001), *entry.MediaID)
	require.NotNil(t, entry.MediaFileID)
	assert.Equal(t, int64(8001), *entry.MediaFileID)
	require.NotNil(t, entry.MediaResponseCode)
	assert.Equal(t, 200, *entry.MediaResponseCode)
	assert.Equal(t, "paper.pdf", entry.Filename)
	require.NotNil(t, entry.FileSize)
	assert.Equal(t, int64(2048), *entry.FileSize)
	assert.False(t, entry.MediaDeleted)
}

func TestRecordMediaFailureKeepsCode(t *testing.T) {
	s := newTestStore(t)
	seedEntry(t, s, 1, 90001)

	outcome := types.SubmissionOutcome{Kind: types.OutcomeFailed, StatusCode: 500}
	require.NoError(t, s.RecordMedia(context.Background(), 1, outcome, "paper.pdf", 2048))

	entry, err := s.Get(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, entry.MediaResponseCode)
	assert.Equal(t, 500, *entry.MediaResponseCode)
	assert.Nil(t, entry.MediaID, "no media ID on failure")
}

func TestMarkAttachmentDeletedClearsStaleMediaIDs(t *testing.T) {
	s := newTestStore(t)
	seedEntry(t, s, 1, 90001)

	attached := types.SubmissionOutcome{
		Kind:        types.OutcomeOK,
		StatusCode:  200,
		MediaID:     7001,
		MediaFileID: 8001,
	}
	require.NoError(t, s.RecordMedia(context.Background(), 1, attached, "paper.pdf", 2048))

	require.NoError(t, s.MarkAttachmentDeleted(context.Background(), 1, 404))

	entry, err := s.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, entry.MediaDeleted)
	require.NotNil(t, entry.MediaResponseCode)
	assert.Equal(t, 404, *entry.MediaResponseCode)

	// The registry no longer knows these IDs; keeping them would send
	// the next run down the replacement path again.
	assert.Nil(t, entry.MediaID)
	assert.Nil(t, entry.MediaFileID)
}

func TestMissingDOIAndBackfill(t *testing.T) {
	s := newTestStore(t)

	ostiID := int64(90001)
	noDOI := types.LedgerEntry{ElementsID: 1, OSTIID: &ostiID}
	require.NoError(t, s.Insert(context.Background(), &noDOI))
	seedEntry(t, s, 2, 90002) // has a DOI
	unsubmitted := types.LedgerEntry{ElementsID: 3}
	require.NoError(t, s.Insert(context.Background(), &unsubmitted))

	missing, err := s.MissingDOI(context.Background())
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, int64(1), missing[0].ElementsID)

	require.NoError(t, s.SetDOI(context.Background(), 1, "10.0001/minted"))

	missing, err = s.MissingDOI(context.Background())
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestExportYAML(t *testing.T) {
	s := newTestStore(t)
	seedEntry(t, s, 1, 90001)

	var buf bytes.Buffer
	require.NoError(t, s.ExportYAML(context.Background(), &buf))

	out := buf.String()
	assert.Contains(t, out, "elements_id: 1")
	assert.Contains(t, out, "osti_id: 90001")
}
