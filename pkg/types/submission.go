// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// SubmissionDocument is the request body for the OSTI E-Link v2
// metadata endpoints. It is built fresh from a PublicationRecord and
// discarded after the HTTP exchange. Optional fields carry omitempty so
// absent values are omitted rather than sent as null.
type SubmissionDocument struct {
	Title           string      `json:"title"`
	ProductType     ProductType `json:"product_type"`
	SiteUniqueID    string      `json:"site_unique_id"`
	PublicationDate string      `json:"publication_date"`

	SiteOwnershipCode  string   `json:"site_ownership_code"`
	AccessLimitations  []string `json:"access_limitations"`
	ReleasedToOSTIDate string   `json:"released_to_osti_date"`

	Description string `json:"description,omitempty"`
	DOI         string `json:"doi,omitempty"`
	ProductSize int64  `json:"product_size,omitempty"`

	// Journal-article fields (product type JA only).
	JournalType string `json:"journal_type,omitempty"`
	JournalName string `json:"journal_name,omitempty"`
	Volume      string `json:"volume,omitempty"`
	Issue       string `json:"issue,omitempty"`

	// Conference field (product type CO only).
	ConferenceInformation string `json:"conference_information,omitempty"`

	Identifiers   []Identifier   `json:"identifiers"`
	Persons       []Person       `json:"persons"`
	Organizations []Organization `json:"organizations"`
}

// Identifier is one entry of a submission's identifier list.
type Identifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Title string `json:"title,omitempty"`
}

// Person is one OSTI person entry. Email is an array even for a single
// address; the OSTI schema requires it.
type Person struct {
	Type       string   `json:"type"`
	FirstName  string   `json:"first_name,omitempty"`
	MiddleName string   `json:"middle_name,omitempty"`
	LastName   string   `json:"last_name"`
	Email      []string `json:"email,omitempty"`
	ORCID      string   `json:"orcid,omitempty"`
}

// Organization is one OSTI organization entry. Grants from the
// reporting database land here as-is; organizational authors are
// reshaped into {name, type: AUTHOR}.
type Organization struct {
	Type        string `json:"type"`
	Name        string `json:"name,omitempty"`
	Identifiers []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"identifiers,omitempty"`
}

// Identifier type codes used in submission documents.
const (
	IdentifierOther        = "OTHER_ID"
	IdentifierReportNumber = "RN"
)

// PersonAuthor is the person/organization type for authors.
const PersonAuthor = "AUTHOR"
