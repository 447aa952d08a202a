// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package transform builds OSTI E-Link v2 submission documents from
// source publication records. The transformation is pure: no I/O, no
// mutation of the input record.
package transform

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/osti-reporter/pkg/types"
)

// MalformedFieldError reports author or grant JSON that did not parse.
// Whether it aborts the run or skips the item is a policy decision made
// by the caller via TransformConfig.OnMalformed.
type MalformedFieldError struct {
	ElementsID int64
	Field      string
	Err        error
}

func (e *MalformedFieldError) Error() string {
	return fmt.Sprintf("publication %d: malformed %s JSON: %v", e.ElementsID, e.Field, e.Err)
}

func (e *MalformedFieldError) Unwrap() error { return e.Err }

// Transformer converts publication records into submission documents.
type Transformer struct {
	cfg types.TransformConfig

	// now supplies the released-to-OSTI date; tests pin it.
	now func() time.Time
}

// New returns a Transformer with defaults filled in.
func New(cfg types.TransformConfig) *Transformer {
	if cfg.ReportNumberPrefix == "" {
		cfg.ReportNumberPrefix = "LBNL-"
	}
	if len(cfg.AccessLimitations) == 0 {
		cfg.AccessLimitations = []string{"UNL"}
	}
	if cfg.OnMalformed == "" {
		cfg.OnMalformed = types.MalformedFail
	}
	return &Transformer{cfg: cfg, now: time.Now}
}

// ProductTypeFor maps a source publication type to its OSTI product
// type code. ok is false for types not reported to OSTI.
func ProductTypeFor(t types.PublicationType) (types.ProductType, bool) {
	switch t {
	case types.TypeJournalArticle, types.TypeInternetPublication:
		return types.ProductJournalArticle, true
	case types.TypeConferencePaper, types.TypePoster:
		return types.ProductConference, true
	case types.TypeBook, types.TypeChapter:
		return types.ProductBook, true
	case types.TypeReport:
		return types.ProductTechnicalReport, true
	default:
		return "", false
	}
}

// Transform builds the submission document for one record. skip is true
// when the record must be excluded from submission: unsupported
// publication types always skip, and malformed author/grant JSON skips
// when the configured policy is "skip". With the "fail" policy malformed
// JSON returns a *MalformedFieldError instead.
func (t *Transformer) Transform(rec types.PublicationRecord) (doc types.SubmissionDocument, skip bool, err error) {
	productType, ok := ProductTypeFor(rec.Type)
	if !ok {
		return doc, true, nil
	}

	doc = types.SubmissionDocument{
		Title:              rec.Title,
		ProductType:        productType,
		SiteUniqueID:       fmt.Sprintf("%d", rec.ElementsID),
		PublicationDate:    rec.PublicationDate,
		SiteOwnershipCode:  t.cfg.SiteOwnershipCode,
		AccessLimitations:  t.cfg.AccessLimitations,
		ReleasedToOSTIDate: t.now().Format("2006-01-02"),
		Description:        rec.Abstract,
		DOI:                rec.DOI,
		ProductSize:        rec.FileSize,
	}

	switch productType {
	case types.ProductJournalArticle:
		doc.JournalType = "FT"
		doc.JournalName = rec.JournalName
		doc.Volume = rec.Volume
		doc.Issue = rec.Issue
	case types.ProductConference:
		// Some conference items carry the venue in the journal field.
		doc.ConferenceInformation = rec.ConferenceName
		if doc.ConferenceInformation == "" {
			doc.ConferenceInformation = rec.JournalName
		}
	}

	doc.Identifiers = t.identifiers(rec)

	doc.Persons, doc.Organizations, err = t.people(rec)
	if err != nil {
		if t.cfg.OnMalformed == types.MalformedSkip {
			return types.SubmissionDocument{}, true, nil
		}
		return types.SubmissionDocument{}, false, err
	}

	return doc, false, nil
}

// identifiers builds the identifier list: ARK and access URL always, the
// normalized report number only when the record has one.
func (t *Transformer) identifiers(rec types.PublicationRecord) []types.Identifier {
	ids := []types.Identifier{
		{Type: types.IdentifierOther, Value: rec.Ark, Title: "ARK"},
		{Type: types.IdentifierOther, Value: rec.EScholURL, Title: "eScholarship URL"},
	}
	if rn := t.NormalizeReportNumber(rec.ReportNumber); rn != "" {
		ids = append(ids, types.Identifier{Type: types.IdentifierReportNumber, Value: rn})
	}
	return ids
}

// NormalizeReportNumber prepends the institutional prefix to bare report
// numbers. Absent report numbers stay absent.
func (t *Transformer) NormalizeReportNumber(rn string) string {
	if rn == "" {
		return ""
	}
	if strings.HasPrefix(rn, t.cfg.ReportNumberPrefix) {
		return rn
	}
	return t.cfg.ReportNumberPrefix + rn
}

// people parses the record's author and grant JSON into the persons and
// organizations lists.
func (t *Transformer) people(rec types.PublicationRecord) ([]types.Person, []types.Organization, error) {
	var persons []types.Person
	var orgs []types.Organization

	if rec.AuthorsJSON != "" {
		var authors []types.Author
		if err := json.Unmarshal([]byte(rec.AuthorsJSON), &authors); err != nil {
			return nil, nil, &MalformedFieldError{ElementsID: rec.ElementsID, Field: "authors", Err: err}
		}
		for _, a := range authors {
			if isOrganizationAuthor(a) {
				orgs = append(orgs, organizationAuthor(a))
				continue
			}
			p := types.Person{
				Type:       types.PersonAuthor,
				FirstName:  a.FirstName,
				MiddleName: a.MiddleName,
				LastName:   a.LastName,
				ORCID:      a.ORCID,
			}
			if a.Email != "" {
				p.Email = []string{a.Email}
			}
			persons = append(persons, p)
		}
	}

	if rec.GrantsJSON != "" {
		var grants []types.Organization
		if err := json.Unmarshal([]byte(rec.GrantsJSON), &grants); err != nil {
			return nil, nil, &MalformedFieldError{ElementsID: rec.ElementsID, Field: "grants", Err: err}
		}
		orgs = append(orgs, grants...)
	}

	return persons, orgs, nil
}

// isOrganizationAuthor detects collaborations recorded as authors. The
// marker substring appears in either name field depending on how the
// upstream catalog split the name.
func isOrganizationAuthor(a types.Author) bool {
	return strings.Contains(strings.ToLower(a.LastName), "collaboration") ||
		strings.Contains(strings.ToLower(a.FirstName), "collaboration")
}

// organizationAuthor reshapes a collaboration author into an OSTI
// organization entry. A single-character given name is a cataloging
// placeholder and is not part of the organization's name.
func organizationAuthor(a types.Author) types.Organization {
	name := a.LastName
	if a.FirstName != "" && len([]rune(a.FirstName)) > 1 {
		name = a.FirstName + " " + name
	}
	return types.Organization{Name: name, Type: types.PersonAuthor}
}
