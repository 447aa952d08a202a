// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pdiddy/osti-reporter/internal/elink"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report records stuck in validation or hidden at OSTI",
	Long: `Status queries the OSTI API for records in the "SV" workflow state
(saved but never validated) and for records flagged hidden, and prints their
most recent audit log entries. These are the records that silently never made
it to osti.gov.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().String("since", "10/01/2024", "only records with metadata added on or after this date (MM/DD/YYYY)")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.ELink.Token == "" {
		return fmt.Errorf("no E-Link token configured (set elink.token or add an elink-token secret)")
	}
	since, _ := cmd.Flags().GetString("since")

	client := elink.NewClient(cfg.ELink)
	out := cmd.OutOrStdout()
	siteCode := cfg.Transform.SiteOwnershipCode

	stuck, err := client.RecordsByWorkflowStatus(cmd.Context(), siteCode, "SV", since)
	if err != nil {
		return err
	}
	if len(stuck) == 0 {
		fmt.Fprintf(out, "No records in SV workflow status since %s.\n", since)
	} else {
		fmt.Fprintf(out, "%d records stuck in SV workflow status since %s:\n", len(stuck), since)
		for _, r := range stuck {
			printRecordSummary(out, r)
		}
	}

	hidden, err := client.HiddenRecords(cmd.Context(), siteCode, since)
	if err != nil {
		return err
	}
	if len(hidden) == 0 {
		fmt.Fprintf(out, "No hidden records since %s.\n", since)
		return nil
	}
	fmt.Fprintf(out, "%d hidden records since %s:\n", len(hidden), since)
	for _, r := range hidden {
		printRecordSummary(out, r)
	}
	return nil
}

func printRecordSummary(w io.Writer, r elink.Record) {
	fmt.Fprintf(w, "\nOSTI ID: %d\n", r.OSTIID)
	fmt.Fprintf(w, "  Title: %s\n", r.Title)
	fmt.Fprintf(w, "  DOI: %s\n", r.DOI)
	fmt.Fprintf(w, "  OSTI URL: https://www.osti.gov/elink/record/%d\n", r.OSTIID)
	if u := r.EScholURL(); u != "" {
		fmt.Fprintf(w, "  eScholarship URL: %s\n", u)
	}
	if n := len(r.AuditLogs); n > 0 {
		last := r.AuditLogs[n-1]
		fmt.Fprintf(w, "  Last audit: %s %s %v\n", last.AuditAt, last.Status, last.Messages)
	}
}
