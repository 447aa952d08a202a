// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "encoding/json"

// OutcomeKind classifies the result of one registry API call.
type OutcomeKind string

const (
	// OutcomeOK is any 2xx response.
	OutcomeOK OutcomeKind = "ok"

	// OutcomeFailed is a non-2xx response other than the stale-media case.
	OutcomeFailed OutcomeKind = "failed"

	// OutcomeMediaGone is a 404 on a media replacement PUT: the
	// previously stored media ID no longer exists at OSTI. Recorded
	// distinctly so the ledger entry can be flagged instead of updated.
	OutcomeMediaGone OutcomeKind = "media_gone"
)

// SubmissionOutcome is the per-item result of one OSTI API call. It is
// attached to the publication it originated from and flows into the
// outcome recorder.
type SubmissionOutcome struct {
	Kind       OutcomeKind     `json:"kind"`
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body,omitempty"`

	// OSTIID is the registry-assigned record ID, set on successful
	// metadata submission.
	OSTIID int64 `json:"osti_id,omitempty"`

	// MediaID and MediaFileID are set on successful media submission
	// and are required for future replacement calls.
	MediaID     int64 `json:"media_id,omitempty"`
	MediaFileID int64 `json:"media_file_id,omitempty"`
}

// Success reports whether the call returned a 2xx status.
func (o SubmissionOutcome) Success() bool {
	return o.Kind == OutcomeOK
}

// SubmittedPublication pairs a candidate record with its submission
// document and per-phase outcomes as the pipeline advances it.
type SubmittedPublication struct {
	Record   PublicationRecord
	Document SubmissionDocument

	// Metadata is nil until the metadata phase ran; Media is nil until
	// the media phase ran. Media stays nil when the metadata phase
	// failed or the record has no attachment.
	Metadata *SubmissionOutcome
	Media    *SubmissionOutcome
}
