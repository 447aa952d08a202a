// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package elink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pdiddy/osti-reporter/internal/httputil"
	"github.com/pdiddy/osti-reporter/pkg/types"
)

// Record is the read-side view of an E-Link record, trimmed to the
// fields the status and DOI-backfill commands inspect.
type Record struct {
	OSTIID             int64              `json:"osti_id"`
	Title              string             `json:"title"`
	DOI                string             `json:"doi"`
	ProductType        string             `json:"product_type"`
	PublicationDate    string             `json:"publication_date"`
	ReleasedToOSTIDate string             `json:"released_to_osti_date"`
	WorkflowStatus     string             `json:"workflow_status"`
	HiddenFlag         bool               `json:"hidden_flag"`
	DateMetadataAdded  string             `json:"date_metadata_added"`
	Identifiers        []types.Identifier `json:"identifiers"`
	AuditLogs          []AuditLog         `json:"audit_logs"`
}

// AuditLog is one entry of a record's OSTI-side audit trail. The most
// recent entry usually explains why a record is stuck in validation.
type AuditLog struct {
	Status   string   `json:"status"`
	AuditAt  string   `json:"audit_date"`
	Messages []string `json:"messages"`
}

// EScholURL returns the first eScholarship URL found in the record's
// identifiers, or an empty string.
func (r Record) EScholURL() string {
	for _, id := range r.Identifiers {
		if id.Title == "eScholarship URL" {
			return id.Value
		}
	}
	return ""
}

// RecordsByWorkflowStatus lists records for a site that sit in the given
// workflow status (for example "SV", saved-but-not-validated) with
// metadata added on or after the since date (MM/DD/YYYY).
func (c *Client) RecordsByWorkflowStatus(ctx context.Context, siteCode, status, since string) ([]Record, error) {
	params := url.Values{
		"site_ownership_code":      {siteCode},
		"workflow_status":          {status},
		"date_metadata_added_from": {since},
	}
	return c.queryRecords(ctx, params)
}

// HiddenRecords lists records for a site flagged hidden at OSTI.
func (c *Client) HiddenRecords(ctx context.Context, siteCode, since string) ([]Record, error) {
	params := url.Values{
		"site_ownership_code":      {siteCode},
		"hidden_flag":              {"true"},
		"date_metadata_added_from": {since},
	}
	return c.queryRecords(ctx, params)
}

func (c *Client) queryRecords(ctx context.Context, params url.Values) ([]Record, error) {
	u := c.cfg.BaseURL + "/records?" + params.Encode()
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decoding records response: %w", err)
	}
	return records, nil
}

// GetRecord fetches one record by its OSTI ID.
func (c *Client) GetRecord(ctx context.Context, ostiID int64) (Record, error) {
	u := fmt.Sprintf("%s/records/%d", c.cfg.BaseURL, ostiID)
	body, err := c.get(ctx, u)
	if err != nil {
		return Record{}, err
	}

	var record Record
	if err := json.Unmarshal(body, &record); err != nil {
		return Record{}, fmt.Errorf("decoding record %d: %w", ostiID, err)
	}
	return record, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setCommonHeaders(req)

	resp, err := httputil.DoWithRetry(ctx, c.httpClient, req, c.cfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s: unexpected status %d", u, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}
