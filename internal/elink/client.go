// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package elink is the OSTI E-Link v2 API client. It covers the two
// submission surfaces (metadata records and media attachments) plus the
// read-side queries used by the status and DOI-backfill commands.
package elink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/pdiddy/osti-reporter/internal/httputil"
	"github.com/pdiddy/osti-reporter/pkg/types"
)

const defaultTimeout = 60 * time.Second

// Client talks to one E-Link environment. Mutating calls (POST/PUT) are
// issued exactly once: a metadata create that is slow to acknowledge may
// still have landed at OSTI, and an automatic retry would mint a
// duplicate record. Only reads go through the 429 backoff helper.
type Client struct {
	cfg        types.ELinkConfig
	httpClient *http.Client
}

// NewClient builds a client for the configured environment.
func NewClient(cfg types.ELinkConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SubmitMetadata creates a new record (POST /records/submit). A non-2xx
// response is a recorded failure, not an error; errors are reserved for
// transport-level problems where the outcome at OSTI is unknown.
func (c *Client) SubmitMetadata(ctx context.Context, doc types.SubmissionDocument) (types.SubmissionOutcome, error) {
	return c.sendMetadata(ctx, http.MethodPost, c.cfg.BaseURL+"/records/submit", doc)
}

// UpdateMetadata replaces an existing record (PUT /records/{id}/submit).
func (c *Client) UpdateMetadata(ctx context.Context, ostiID int64, doc types.SubmissionDocument) (types.SubmissionOutcome, error) {
	u := fmt.Sprintf("%s/records/%d/submit", c.cfg.BaseURL, ostiID)
	return c.sendMetadata(ctx, http.MethodPut, u, doc)
}

func (c *Client) sendMetadata(ctx context.Context, method, u string, doc types.SubmissionDocument) (types.SubmissionOutcome, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return types.SubmissionOutcome{}, fmt.Errorf("encoding submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return types.SubmissionOutcome{}, fmt.Errorf("building metadata request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setCommonHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.SubmissionOutcome{}, fmt.Errorf("metadata %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.SubmissionOutcome{}, fmt.Errorf("reading metadata response: %w", err)
	}

	outcome := types.SubmissionOutcome{
		StatusCode: resp.StatusCode,
		Body:       json.RawMessage(respBody),
	}
	if resp.StatusCode >= 300 {
		outcome.Kind = types.OutcomeFailed
		return outcome, nil
	}

	var record struct {
		OSTIID int64 `json:"osti_id"`
	}
	if err := json.Unmarshal(respBody, &record); err != nil {
		return types.SubmissionOutcome{}, fmt.Errorf("decoding metadata response: %w", err)
	}

	outcome.Kind = types.OutcomeOK
	outcome.OSTIID = record.OSTIID
	return outcome, nil
}

// SubmitMedia attaches the publication's PDF to a record for the first
// time (POST /media/{osti_id}). The file bytes are fetched from the
// record's source URL and streamed through a multipart body.
func (c *Client) SubmitMedia(ctx context.Context, rec types.PublicationRecord, ostiID int64) (types.SubmissionOutcome, error) {
	u := fmt.Sprintf("%s/media/%d", c.cfg.BaseURL, ostiID)
	return c.sendMedia(ctx, http.MethodPost, u, rec)
}

// ReplaceMedia swaps the stored attachment (PUT /media/{osti_id}/{media_id}).
// A 404 means OSTI no longer knows the media ID; that comes back as a
// distinct OutcomeMediaGone so the ledger can flag the entry and the next
// run re-creates the attachment instead of replacing it.
func (c *Client) ReplaceMedia(ctx context.Context, rec types.PublicationRecord, ostiID, mediaID int64) (types.SubmissionOutcome, error) {
	u := fmt.Sprintf("%s/media/%d/%d", c.cfg.BaseURL, ostiID, mediaID)
	outcome, err := c.sendMedia(ctx, http.MethodPut, u, rec)
	if err != nil {
		return outcome, err
	}
	if outcome.StatusCode == http.StatusNotFound {
		outcome.Kind = types.OutcomeMediaGone
	}
	return outcome, nil
}

func (c *Client) sendMedia(ctx context.Context, method, mediaURL string, rec types.PublicationRecord) (types.SubmissionOutcome, error) {
	fileResp, err := c.fetchFile(ctx, rec.FileURL)
	if err != nil {
		// The file store failed, not OSTI: nothing was mutated there.
		// Recording a failed outcome keeps the run going; a fatal error
		// here after a successful metadata POST would leave OSTI with a
		// record the ledger never hears about.
		return failedOutcome(err), nil
	}
	defer fileResp.Body.Close()

	filename := rec.Filename
	if filename == "" {
		filename = path.Base(rec.FileURL)
	}

	// Stream the fetched file straight into the multipart body; large
	// PDFs never need to fit in memory.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, fileResp.Body); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	u := mediaURL + "?" + url.Values{"title": {rec.Title}}.Encode()
	req, err := http.NewRequestWithContext(ctx, method, u, pr)
	if err != nil {
		return types.SubmissionOutcome{}, fmt.Errorf("building media request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setCommonHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.SubmissionOutcome{}, fmt.Errorf("media %s %s: %w", method, mediaURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.SubmissionOutcome{}, fmt.Errorf("reading media response: %w", err)
	}

	outcome := types.SubmissionOutcome{
		StatusCode: resp.StatusCode,
		Body:       json.RawMessage(respBody),
	}
	if resp.StatusCode >= 300 {
		outcome.Kind = types.OutcomeFailed
		return outcome, nil
	}

	var media struct {
		Files []struct {
			MediaID     int64 `json:"media_id"`
			MediaFileID int64 `json:"media_file_id"`
		} `json:"files"`
	}
	// An undecodable success response is recorded as a media failure
	// with no IDs; the next run retries the attachment.
	if err := json.Unmarshal(respBody, &media); err != nil || len(media.Files) == 0 {
		outcome.Kind = types.OutcomeFailed
		return outcome, nil
	}

	outcome.Kind = types.OutcomeOK
	outcome.MediaID = media.Files[0].MediaID
	outcome.MediaFileID = media.Files[0].MediaFileID
	return outcome, nil
}

// failedOutcome wraps a local-side failure as a recordable media outcome
// with no status code and the failure text as the response body.
func failedOutcome(err error) types.SubmissionOutcome {
	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	return types.SubmissionOutcome{
		Kind: types.OutcomeFailed,
		Body: json.RawMessage(body),
	}
}

// fetchFile downloads the publication's PDF from the source file store.
// The fetch is an idempotent read, so it goes through the retry helper.
func (c *Client) fetchFile(ctx context.Context, fileURL string) (*http.Response, error) {
	if fileURL == "" {
		return nil, fmt.Errorf("publication has no file URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building file request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, c.httpClient, req, c.cfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", fileURL, err)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %s: unexpected status %d", fileURL, resp.StatusCode)
	}
	return resp, nil
}

func (c *Client) setCommonHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
}
