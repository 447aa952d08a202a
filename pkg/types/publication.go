// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// PublicationType is the publication type as reported by the Elements
// reporting database.
type PublicationType string

const (
	TypeJournalArticle      PublicationType = "Journal article"
	TypeInternetPublication PublicationType = "Internet publication"
	TypeConferencePaper     PublicationType = "Conference papers"
	TypePoster              PublicationType = "Poster"
	TypeBook                PublicationType = "Book"
	TypeChapter             PublicationType = "Chapter"
	TypeReport              PublicationType = "Report"
)

// ProductType is the OSTI E-Link product type code derived from a
// PublicationType.
type ProductType string

const (
	ProductJournalArticle  ProductType = "JA"
	ProductConference      ProductType = "CO"
	ProductBook            ProductType = "B"
	ProductTechnicalReport ProductType = "TR"
)

// PublicationRecord is one candidate row from the Elements reporting
// database. Records are fetched fresh per run and never mutated; the
// source layer resolves column-name quirks and null sentinels once, so
// an empty string here always means "absent".
type PublicationRecord struct {
	// ElementsID is the numeric Elements publication ID, the unique
	// site identifier sent to OSTI.
	ElementsID int64 `json:"elements_id"`

	Title    string          `json:"title"`
	Abstract string          `json:"abstract,omitempty"`
	Type     PublicationType `json:"type"`

	JournalName    string `json:"journal_name,omitempty"`
	Volume         string `json:"volume,omitempty"`
	Issue          string `json:"issue,omitempty"`
	ConferenceName string `json:"conference_name,omitempty"`

	// PublicationDate is the Elements "Reporting Date 1" value,
	// already formatted as YYYY-MM-DD.
	PublicationDate string `json:"publication_date"`

	// Ark is the eScholarship persistent identifier.
	Ark string `json:"ark"`

	// EScholID is the short eScholarship item ID used to derive the
	// public access URL.
	EScholID string `json:"eschol_id"`

	// EScholURL is the derived public access URL. The source layer
	// builds it from EScholID using the environment's URL template.
	EScholURL string `json:"eschol_url"`

	DOI          string `json:"doi,omitempty"`
	ReportNumber string `json:"report_number,omitempty"`

	FileURL       string `json:"file_url,omitempty"`
	Filename      string `json:"filename,omitempty"`
	FileExtension string `json:"file_extension,omitempty"`
	FileSize      int64  `json:"file_size,omitempty"`

	// AuthorsJSON and GrantsJSON are JSON-encoded arrays exactly as
	// stored in the reporting database. The transformer parses them.
	AuthorsJSON string `json:"authors_json,omitempty"`
	GrantsJSON  string `json:"grants_json,omitempty"`

	// ModifiedWhen is the source system's last-modified timestamp,
	// used to detect metadata changes against the ledger.
	ModifiedWhen time.Time `json:"modified_when"`

	// OSTIID and MediaID are populated only on update-flow candidates,
	// joined in from the ledger by ElementsID.
	OSTIID      int64 `json:"osti_id,omitempty"`
	MediaID     int64 `json:"media_id,omitempty"`
	MediaFileID int64 `json:"media_file_id,omitempty"`
}

// Author is one entry of a record's JSON-encoded author list.
type Author struct {
	FirstName  string `json:"first_name,omitempty"`
	MiddleName string `json:"middle_name,omitempty"`
	LastName   string `json:"last_name"`
	Email      string `json:"email,omitempty"`
	ORCID      string `json:"orcid,omitempty"`
}
