// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/osti-reporter/internal/elink"
	"github.com/pdiddy/osti-reporter/internal/ledger"
	"github.com/pdiddy/osti-reporter/internal/pipeline"
	"github.com/pdiddy/osti-reporter/internal/runlog"
	"github.com/pdiddy/osti-reporter/internal/source"
	"github.com/pdiddy/osti-reporter/pkg/types"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Submit new publications to OSTI",
	Long: `Report finds publications in the Elements reporting database that have
no entry in the eSchol OSTI ledger and submits them to OSTI: metadata first,
then the PDF. Every outcome, including failures, is written to the ledger and
the run log.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.Run.DryRun && cfg.ELink.Token == "" {
		return fmt.Errorf("no E-Link token configured (set elink.token or add an elink-token secret)")
	}

	p, cleanup, err := openPipeline(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	digest, err := p.RunReport(cmd.Context())
	if err != nil {
		return err
	}

	printDigest(cmd.OutOrStdout(), digest)
	return nil
}

// openPipeline opens the three collaborators and assembles the pipeline.
// The returned cleanup closes them in reverse order.
func openPipeline(cmd *cobra.Command, cfg types.ReporterConfig) (*pipeline.Pipeline, func(), error) {
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, nil, err
	}

	store, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return nil, nil, err
	}

	src, err := source.Open(cmd.Context(), cfg.Source)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	runLog, err := runlog.New(cfg.Run.LogDir, cfg.Run.FullLogging, time.Now())
	if err != nil {
		src.Close()
		store.Close()
		return nil, nil, err
	}
	logger.Info("run log folder created", zap.String("dir", runLog.Dir()))

	p := pipeline.New(cfg, src, store, elink.NewClient(cfg.ELink), runLog, logger)
	cleanup := func() {
		src.Close()
		store.Close()
		logger.Sync()
	}
	return p, cleanup, nil
}

func printDigest(w io.Writer, d pipeline.Digest) {
	if d.DryRun {
		fmt.Fprintln(w, "Dry run: nothing was submitted.")
	}
	fmt.Fprintf(w, "Candidates: %d (skipped: %d, deferred: %d)\n",
		d.Candidates, d.Skipped, d.Deferred)

	printPhase(w, "New metadata", d.NewMetadata)
	printPhase(w, "New media", d.NewMedia)
	printPhase(w, "Metadata updates", d.MetadataUpdates)
	printPhase(w, "Media updates", d.MediaUpdates)

	if len(d.MediaGoneIDs) > 0 {
		fmt.Fprintf(w, "Stale media flagged for re-creation: %v\n", d.MediaGoneIDs)
	}
}

func printPhase(w io.Writer, name string, p pipeline.PhaseDigest) {
	if p.Attempted == 0 {
		return
	}
	fmt.Fprintf(w, "%s: %d/%d succeeded", name, p.Succeeded, p.Attempted)
	if len(p.FailedIDs) > 0 {
		fmt.Fprintf(w, ", failed IDs: %v", p.FailedIDs)
	}
	fmt.Fprintln(w)
}
