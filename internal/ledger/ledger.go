// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger persists submission outcomes in the eSchol OSTI ledger,
// the Postgres table recording which publications have been reported to
// OSTI and under which registry IDs.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.yaml.in/yaml/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pdiddy/osti-reporter/pkg/types"
)

// ErrNotFound is returned when an update targets an Elements ID with no
// ledger entry.
var ErrNotFound = errors.New("ledger entry not found")

// Store wraps the ledger database.
type Store struct {
	db *gorm.DB
}

// Open connects to the Postgres ledger for the given configuration.
func Open(cfg types.LedgerConfig) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenWithDialector connects through an explicit gorm dialector and runs
// the schema migration. Tests use this with the sqlite driver.
func OpenWithDialector(d gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(d, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	if err := db.AutoMigrate(&types.LedgerEntry{}); err != nil {
		return nil, fmt.Errorf("migrating ledger schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// All returns every ledger entry ordered by Elements ID. The full set is
// loaded once per run to build the staging snapshot.
func (s *Store) All(ctx context.Context) ([]types.LedgerEntry, error) {
	var entries []types.LedgerEntry
	err := s.db.WithContext(ctx).Order("elements_id").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	return entries, nil
}

// Get returns the entry for one Elements ID.
func (s *Store) Get(ctx context.Context, elementsID int64) (types.LedgerEntry, error) {
	var entry types.LedgerEntry
	err := s.db.WithContext(ctx).Where("elements_id = ?", elementsID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entry, fmt.Errorf("elements id %d: %w", elementsID, ErrNotFound)
	}
	if err != nil {
		return entry, fmt.Errorf("reading ledger entry %d: %w", elementsID, err)
	}
	return entry, nil
}

// Insert records a first successful metadata submission. The unique
// index on elements_id rejects duplicate inserts, so a crashed run that
// is restarted cannot create a second entry for the same publication.
func (s *Store) Insert(ctx context.Context, entry *types.LedgerEntry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("inserting ledger entry %d: %w", entry.ElementsID, err)
	}
	return nil
}

// UpdateMetadata refreshes the entry after a metadata-replacement
// submission: the source modification timestamp advances so the item
// drops out of the next metadata diff.
func (s *Store) UpdateMetadata(ctx context.Context, elementsID int64, modified time.Time, doi, reportNumber string) error {
	updates := map[string]any{
		"eschol_pr_modified_when": modified,
		"doi":                     doi,
		"lbnl_report_no":          reportNumber,
	}
	return s.update(ctx, elementsID, updates)
}

// RecordMedia stores the outcome of a media submission, success or
// failure. Failure response codes are kept so operators can audit them
// from the ledger and so the next run retries the attachment.
func (s *Store) RecordMedia(ctx context.Context, elementsID int64, outcome types.SubmissionOutcome, filename string, fileSize int64) error {
	updates := map[string]any{
		"media_response_code": outcome.StatusCode,
		"prf_filename":        filename,
		"prf_size":            fileSize,
		"media_deleted":       false,
	}
	if outcome.Kind == types.OutcomeOK {
		updates["media_id"] = outcome.MediaID
		updates["media_file_id"] = outcome.MediaFileID
	}
	return s.update(ctx, elementsID, updates)
}

// MarkAttachmentDeleted flags an entry whose media replacement PUT came
// back 404: the registry no longer knows the stored media ID. The stale
// media IDs are cleared so the next run's attachment diff selects the
// entry and re-creates the attachment (POST) instead of repeating the
// doomed replacement PUT.
func (s *Store) MarkAttachmentDeleted(ctx context.Context, elementsID int64, statusCode int) error {
	return s.update(ctx, elementsID, map[string]any{
		"media_deleted":       true,
		"media_response_code": statusCode,
		"media_id":            nil,
		"media_file_id":       nil,
	})
}

// SetDOI backfills a registry-minted DOI onto an existing entry.
func (s *Store) SetDOI(ctx context.Context, elementsID int64, doi string) error {
	return s.update(ctx, elementsID, map[string]any{"doi": doi})
}

// MissingDOI returns entries that have an OSTI ID but no recorded DOI,
// the candidates for a DOI backfill pass.
func (s *Store) MissingDOI(ctx context.Context) ([]types.LedgerEntry, error) {
	var entries []types.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("osti_id IS NOT NULL AND (doi IS NULL OR doi = '')").
		Order("elements_id").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("reading ledger entries without DOI: %w", err)
	}
	return entries, nil
}

func (s *Store) update(ctx context.Context, elementsID int64, updates map[string]any) error {
	res := s.db.WithContext(ctx).
		Model(&types.LedgerEntry{}).
		Where("elements_id = ?", elementsID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("updating ledger entry %d: %w", elementsID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("elements id %d: %w", elementsID, ErrNotFound)
	}
	return nil
}

// ExportYAML writes all ledger entries to w as a YAML document, for
// operator inspection and offline diffing.
func (s *Store) ExportYAML(ctx context.Context, w io.Writer) error {
	entries, err := s.All(ctx)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encoding ledger export: %w", err)
	}
	return nil
}
