// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// LedgerEntry is one row of the eSchol OSTI ledger: a publication that
// has been submitted to OSTI. At most one entry exists per Elements ID;
// OSTIID is the join key for every update once assigned. Entries are
// created on first successful metadata submission and never deleted.
type LedgerEntry struct {
	ID        uint      `json:"id" yaml:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`

	ElementsID int64  `json:"elements_id" yaml:"elements_id" gorm:"column:elements_id;uniqueIndex;not null"`
	OSTIID     *int64 `json:"osti_id" yaml:"osti_id" gorm:"column:osti_id;index"`

	Ark          string `json:"eschol_ark" yaml:"eschol_ark" gorm:"column:eschol_ark"`
	EScholID     string `json:"eschol_id" yaml:"eschol_id" gorm:"column:eschol_id"`
	DOI          string `json:"doi" yaml:"doi" gorm:"column:doi"`
	ReportNumber string `json:"lbnl_report_no" yaml:"lbnl_report_no" gorm:"column:lbnl_report_no"`

	// ModifiedWhen mirrors the source system's last-modified timestamp
	// at submission time; the metadata-changes query compares against it.
	ModifiedWhen *time.Time `json:"eschol_pr_modified_when" yaml:"eschol_pr_modified_when" gorm:"column:eschol_pr_modified_when"`

	// Media fields. Failure codes are stored too: operators audit a
	// non-zero failure rate from the ledger, not from run logs.
	MediaResponseCode *int   `json:"media_response_code" yaml:"media_response_code" gorm:"column:media_response_code"`
	MediaID           *int64 `json:"media_id" yaml:"media_id" gorm:"column:media_id"`
	MediaFileID       *int64 `json:"media_file_id" yaml:"media_file_id" gorm:"column:media_file_id"`
	Filename          string `json:"prf_filename" yaml:"prf_filename" gorm:"column:prf_filename"`
	FileSize          *int64 `json:"prf_size" yaml:"prf_size" gorm:"column:prf_size"`

	// MediaDeleted is set when a media replacement PUT returns 404,
	// meaning the stored media ID is stale at OSTI.
	MediaDeleted bool `json:"media_deleted" yaml:"media_deleted" gorm:"column:media_deleted;default:false"`
}

// TableName pins the legacy table name.
func (LedgerEntry) TableName() string {
	return "osti_eschol"
}
