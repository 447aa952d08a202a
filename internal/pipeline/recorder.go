// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/osti-reporter/internal/ledger"
	"github.com/pdiddy/osti-reporter/pkg/types"
)

const defaultWriteInterval = 3 * time.Second

// Recorder writes submission outcomes to the ledger after each item. A
// rate limiter paces consecutive writes; the ledger host throttles
// connections during high-volume bursts. Writes happen strictly in item
// order, one at a time.
type Recorder struct {
	store   *ledger.Store
	limiter *rate.Limiter
}

// NewRecorder builds a recorder over the given store.
func NewRecorder(store *ledger.Store, cfg types.LedgerConfig) *Recorder {
	interval := cfg.WriteInterval
	if interval <= 0 {
		interval = defaultWriteInterval
	}
	// Burst 1: the first write goes through immediately, every later
	// write waits out the interval.
	return &Recorder{
		store:   store,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// RecordNewSubmission inserts a ledger entry for a first-time
// submission. A failed metadata phase leaves no entry: the publication
// is still unknown to OSTI and the next run retries it from scratch.
// Media results, including failures, land in the same entry.
func (r *Recorder) RecordNewSubmission(ctx context.Context, pub types.SubmittedPublication, reportNumber string) error {
	if pub.Metadata == nil || !pub.Metadata.Success() {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	modified := pub.Record.ModifiedWhen
	entry := types.LedgerEntry{
		ElementsID:   pub.Record.ElementsID,
		OSTIID:       &pub.Metadata.OSTIID,
		Ark:          pub.Record.Ark,
		EScholID:     pub.Record.EScholID,
		DOI:          pub.Record.DOI,
		ReportNumber: reportNumber,
		ModifiedWhen: &modified,
	}

	if pub.Media != nil {
		code := pub.Media.StatusCode
		entry.MediaResponseCode = &code
		entry.Filename = pub.Record.Filename
		size := pub.Record.FileSize
		entry.FileSize = &size
		if pub.Media.Success() {
			mediaID := pub.Media.MediaID
			fileID := pub.Media.MediaFileID
			entry.MediaID = &mediaID
			entry.MediaFileID = &fileID
		}
	}

	return r.store.Insert(ctx, &entry)
}

// RecordMetadataUpdate advances the entry's modification timestamp after
// a successful metadata replacement so the item drops out of the next
// metadata diff.
func (r *Recorder) RecordMetadataUpdate(ctx context.Context, pub types.SubmittedPublication, reportNumber string) error {
	if pub.Metadata == nil || !pub.Metadata.Success() {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.store.UpdateMetadata(ctx, pub.Record.ElementsID,
		pub.Record.ModifiedWhen, pub.Record.DOI, reportNumber)
}

// RecordMediaOutcome stores a media submission result, success or
// failure. A stale-media 404 flags the entry instead, so the next run
// re-creates the attachment.
func (r *Recorder) RecordMediaOutcome(ctx context.Context, pub types.SubmittedPublication) error {
	if pub.Media == nil {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	if pub.Media.Kind == types.OutcomeMediaGone {
		return r.store.MarkAttachmentDeleted(ctx, pub.Record.ElementsID, pub.Media.StatusCode)
	}
	return r.store.RecordMedia(ctx, pub.Record.ElementsID, *pub.Media,
		pub.Record.Filename, pub.Record.FileSize)
}
