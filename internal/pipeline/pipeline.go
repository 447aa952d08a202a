// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline orchestrates one reporting run: snapshot the ledger,
// diff it against the source registry, transform the candidates, submit
// them to OSTI, and record the outcomes.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/osti-reporter/internal/elink"
	"github.com/pdiddy/osti-reporter/internal/ledger"
	"github.com/pdiddy/osti-reporter/internal/runlog"
	"github.com/pdiddy/osti-reporter/internal/source"
	"github.com/pdiddy/osti-reporter/internal/transform"
	"github.com/pdiddy/osti-reporter/pkg/types"
)

const defaultSubmissionLimit = 200

// Pipeline wires the run's collaborators. Items are processed one at a
// time, in candidate order; the registry publishes no concurrency limits
// and sequential writes keep the ledger trivially consistent.
type Pipeline struct {
	cfg      types.ReporterConfig
	source   *source.Registry
	store    *ledger.Store
	client   *elink.Client
	tr       *transform.Transformer
	recorder *Recorder
	runLog   *runlog.Log
	logger   *zap.Logger
}

// New assembles a pipeline from already-opened collaborators.
func New(cfg types.ReporterConfig, src *source.Registry, store *ledger.Store, client *elink.Client, runLog *runlog.Log, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		source:   src,
		store:    store,
		client:   client,
		tr:       transform.New(cfg.Transform),
		recorder: NewRecorder(store, cfg.Ledger),
		runLog:   runLog,
		logger:   logger,
	}
}

// PhaseDigest summarizes one submission phase of a run.
type PhaseDigest struct {
	Attempted int     `json:"attempted"`
	Succeeded int     `json:"succeeded"`
	FailedIDs []int64 `json:"failed_ids,omitempty"`
}

func (p *PhaseDigest) count(elementsID int64, ok bool) {
	p.Attempted++
	if ok {
		p.Succeeded++
	} else {
		p.FailedIDs = append(p.FailedIDs, elementsID)
	}
}

// Digest is the run's final summary, printed to the operator and saved
// to the run log.
type Digest struct {
	DryRun     bool `json:"dry_run,omitempty"`
	Candidates int  `json:"candidates"`
	Skipped    int  `json:"skipped"`
	Deferred   int  `json:"deferred"`

	NewMetadata     PhaseDigest `json:"new_metadata"`
	NewMedia        PhaseDigest `json:"new_media"`
	MetadataUpdates PhaseDigest `json:"metadata_updates"`
	MediaUpdates    PhaseDigest `json:"media_updates"`

	// MediaGoneIDs lists items whose media replacement hit a stale
	// media ID at OSTI; their ledger entries were flagged for re-creation.
	MediaGoneIDs []int64 `json:"media_gone_ids,omitempty"`
}

// RunReport executes the new-item flow: publications in the source
// registry with no ledger entry are submitted to OSTI (metadata first,
// then the PDF), and each outcome is written to the ledger.
func (p *Pipeline) RunReport(ctx context.Context) (Digest, error) {
	var digest Digest
	digest.DryRun = p.cfg.Run.DryRun

	candidates, err := p.stageAndDiff(ctx)
	if err != nil {
		return digest, err
	}
	digest.Candidates = len(candidates)
	p.logger.Info("new candidates found", zap.Int("count", len(candidates)))

	pending, skipped, err := p.transformAll(candidates)
	if err != nil {
		return digest, err
	}
	digest.Skipped = skipped

	pending, digest.Deferred = p.cap(pending)

	for i := range pending {
		if err := p.runLog.WriteSubmission(pending[i].Record.ElementsID, pending[i].Document); err != nil {
			return digest, err
		}
	}

	if p.cfg.Run.DryRun {
		p.logger.Info("dry run, halting before submission",
			zap.Int("would_submit", len(pending)))
		return digest, p.runLog.WriteDigest(digest)
	}

	for i := range pending {
		if err := p.submitNew(ctx, &pending[i], &digest); err != nil {
			return digest, err
		}
	}

	return digest, p.runLog.WriteDigest(digest)
}

// RunUpdates executes the update flows against already-submitted items.
func (p *Pipeline) RunUpdates(ctx context.Context, metadata, media bool) (Digest, error) {
	var digest Digest
	digest.DryRun = p.cfg.Run.DryRun

	if err := p.loadStaging(ctx); err != nil {
		return digest, err
	}
	filter := source.Filter{IDs: p.cfg.Run.IDs}

	if metadata {
		changed, err := p.source.QueryMetadataChanges(ctx, filter)
		if err != nil {
			return digest, err
		}
		if err := p.runLog.WriteCandidates("metadata_changes", changed); err != nil {
			return digest, err
		}
		digest.Candidates += len(changed)
		p.logger.Info("metadata changes found", zap.Int("count", len(changed)))

		pending, skipped, err := p.transformAll(changed)
		if err != nil {
			return digest, err
		}
		digest.Skipped += skipped

		var deferred int
		pending, deferred = p.cap(pending)
		digest.Deferred += deferred

		for i := range pending {
			if err := p.runLog.WriteSubmission(pending[i].Record.ElementsID, pending[i].Document); err != nil {
				return digest, err
			}
		}

		if !p.cfg.Run.DryRun {
			for i := range pending {
				if err := p.updateMetadata(ctx, &pending[i], &digest); err != nil {
					return digest, err
				}
			}
		}
	}

	if media {
		changed, err := p.source.QueryAttachmentChanges(ctx, filter)
		if err != nil {
			return digest, err
		}
		if err := p.runLog.WriteCandidates("attachment_changes", changed); err != nil {
			return digest, err
		}
		digest.Candidates += len(changed)
		p.logger.Info("attachment changes found", zap.Int("count", len(changed)))

		pending := make([]types.SubmittedPublication, len(changed))
		for i, rec := range changed {
			pending[i] = types.SubmittedPublication{Record: rec}
		}

		var deferred int
		pending, deferred = p.cap(pending)
		digest.Deferred += deferred

		if !p.cfg.Run.DryRun {
			for i := range pending {
				if err := p.updateMedia(ctx, &pending[i], &digest); err != nil {
					return digest, err
				}
			}
		}
	}

	return digest, p.runLog.WriteDigest(digest)
}

// loadStaging snapshots the ledger into the source engine's temporary
// table. Any failure here aborts the run: an incomplete snapshot would
// resubmit publications OSTI already has.
func (p *Pipeline) loadStaging(ctx context.Context) error {
	entries, err := p.store.All(ctx)
	if err != nil {
		return err
	}
	p.logger.Info("ledger snapshot loaded", zap.Int("entries", len(entries)))

	if err := p.source.LoadStaging(ctx, entries); err != nil {
		return fmt.Errorf("staging ledger snapshot: %w", err)
	}

	if p.cfg.Run.FullLogging {
		staged, err := p.source.ReadStaging(ctx)
		if err != nil {
			return err
		}
		if err := p.runLog.WriteStagingRows(staged); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) stageAndDiff(ctx context.Context) ([]types.PublicationRecord, error) {
	if err := p.loadStaging(ctx); err != nil {
		return nil, err
	}

	candidates, err := p.source.QueryNewCandidates(ctx, source.Filter{IDs: p.cfg.Run.IDs})
	if err != nil {
		return nil, err
	}
	if err := p.runLog.WriteCandidates("new_candidates", candidates); err != nil {
		return nil, err
	}
	return candidates, nil
}

// transformAll builds submission documents, dropping skipped records.
func (p *Pipeline) transformAll(records []types.PublicationRecord) ([]types.SubmittedPublication, int, error) {
	var pending []types.SubmittedPublication
	skipped := 0

	for _, rec := range records {
		doc, skip, err := p.tr.Transform(rec)
		if err != nil {
			return nil, skipped, err
		}
		if skip {
			skipped++
			p.logger.Info("skipping publication",
				zap.Int64("elements_id", rec.ElementsID),
				zap.String("type", string(rec.Type)))
			continue
		}
		pending = append(pending, types.SubmittedPublication{Record: rec, Document: doc})
	}
	return pending, skipped, nil
}

// cap truncates the pending list to the per-run item limit. Items past
// the limit are deferred, not dropped: the next run's diff picks them up
// again in the same order.
func (p *Pipeline) cap(pending []types.SubmittedPublication) ([]types.SubmittedPublication, int) {
	limit := p.cfg.Run.SubmissionLimit
	if limit <= 0 {
		limit = defaultSubmissionLimit
	}
	if len(pending) <= limit {
		return pending, 0
	}
	return pending[:limit], len(pending) - limit
}

// submitNew runs the two-phase submission for one new publication. The
// media phase runs only after a successful metadata phase, and only when
// the record carries a file.
func (p *Pipeline) submitNew(ctx context.Context, pub *types.SubmittedPublication, digest *Digest) error {
	p.logger.Info("submitting metadata",
		zap.Int64("elements_id", pub.Record.ElementsID),
		zap.String("title", pub.Record.Title))

	outcome, err := p.client.SubmitMetadata(ctx, pub.Document)
	if err != nil {
		return err
	}
	pub.Metadata = &outcome
	digest.NewMetadata.count(pub.Record.ElementsID, outcome.Success())
	if err := p.runLog.WriteOutcome(pub.Record.ElementsID, "metadata", outcome); err != nil {
		return err
	}

	if !outcome.Success() {
		p.logger.Warn("metadata submission failed",
			zap.Int64("elements_id", pub.Record.ElementsID),
			zap.Int("status", outcome.StatusCode))
		return nil
	}

	if pub.Record.FileURL != "" {
		media, err := p.client.SubmitMedia(ctx, pub.Record, outcome.OSTIID)
		if err != nil {
			// OSTI acknowledged the metadata POST above; the ledger
			// entry must be written no matter how the media phase
			// dies, or the next run's diff re-submits the metadata.
			p.logger.Warn("media submission error",
				zap.Int64("elements_id", pub.Record.ElementsID),
				zap.Error(err))
			media = types.SubmissionOutcome{Kind: types.OutcomeFailed}
		}
		pub.Media = &media
		digest.NewMedia.count(pub.Record.ElementsID, media.Success())
		if err := p.runLog.WriteOutcome(pub.Record.ElementsID, "media", media); err != nil {
			return err
		}
	}

	return p.recorder.RecordNewSubmission(ctx, *pub,
		p.tr.NormalizeReportNumber(pub.Record.ReportNumber))
}

func (p *Pipeline) updateMetadata(ctx context.Context, pub *types.SubmittedPublication, digest *Digest) error {
	p.logger.Info("updating metadata",
		zap.Int64("elements_id", pub.Record.ElementsID),
		zap.Int64("osti_id", pub.Record.OSTIID))

	outcome, err := p.client.UpdateMetadata(ctx, pub.Record.OSTIID, pub.Document)
	if err != nil {
		return err
	}
	pub.Metadata = &outcome
	digest.MetadataUpdates.count(pub.Record.ElementsID, outcome.Success())
	if err := p.runLog.WriteOutcome(pub.Record.ElementsID, "metadata", outcome); err != nil {
		return err
	}

	if !outcome.Success() {
		return nil
	}
	return p.recorder.RecordMetadataUpdate(ctx, *pub,
		p.tr.NormalizeReportNumber(pub.Record.ReportNumber))
}

// updateMedia re-sends a publication's PDF. A stored media ID means the
// attachment exists at OSTI and gets a replacement PUT; no media ID
// means the earlier attempt failed and the attachment is created fresh.
func (p *Pipeline) updateMedia(ctx context.Context, pub *types.SubmittedPublication, digest *Digest) error {
	var outcome types.SubmissionOutcome
	var err error

	if pub.Record.MediaID == 0 {
		p.logger.Info("submitting media for first time",
			zap.Int64("elements_id", pub.Record.ElementsID),
			zap.Int64("osti_id", pub.Record.OSTIID))
		outcome, err = p.client.SubmitMedia(ctx, pub.Record, pub.Record.OSTIID)
	} else {
		p.logger.Info("replacing media",
			zap.Int64("elements_id", pub.Record.ElementsID),
			zap.Int64("osti_id", pub.Record.OSTIID),
			zap.Int64("media_id", pub.Record.MediaID))
		outcome, err = p.client.ReplaceMedia(ctx, pub.Record, pub.Record.OSTIID, pub.Record.MediaID)
	}
	if err != nil {
		return err
	}

	pub.Media = &outcome
	digest.MediaUpdates.count(pub.Record.ElementsID, outcome.Success())
	if outcome.Kind == types.OutcomeMediaGone {
		digest.MediaGoneIDs = append(digest.MediaGoneIDs, pub.Record.ElementsID)
	}
	if err := p.runLog.WriteOutcome(pub.Record.ElementsID, "media", outcome); err != nil {
		return err
	}

	return p.recorder.RecordMediaOutcome(ctx, *pub)
}
