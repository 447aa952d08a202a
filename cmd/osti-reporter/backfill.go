// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/pdiddy/osti-reporter/internal/elink"
	"github.com/pdiddy/osti-reporter/internal/ledger"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill-dois",
	Short: "Fetch OSTI-minted DOIs for ledger entries that lack one",
	Long: `OSTI mints a DOI for submitted records that arrive without one, but
the mint happens after our submission call returns. Backfill-dois queries each
ledger entry that has an OSTI ID and no DOI, and copies the minted DOI back
into the ledger.`,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().Duration("query-interval", time.Second, "pause between consecutive OSTI queries")

	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.ELink.Token == "" {
		return fmt.Errorf("no E-Link token configured (set elink.token or add an elink-token secret)")
	}
	interval, _ := cmd.Flags().GetDuration("query-interval")

	store, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return err
	}
	defer store.Close()

	missing, err := store.MissingDOI(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d ledger entries without a DOI.\n", len(missing))

	client := elink.NewClient(cfg.ELink)
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	updated := 0

	for _, entry := range missing {
		if err := limiter.Wait(cmd.Context()); err != nil {
			return err
		}

		record, err := client.GetRecord(cmd.Context(), *entry.OSTIID)
		if err != nil {
			fmt.Fprintf(out, "OSTI ID %d: query failed, skipping (%v)\n", *entry.OSTIID, err)
			continue
		}
		if record.DOI == "" || record.DOI == "None" {
			fmt.Fprintf(out, "OSTI ID %d: no DOI minted yet.\n", *entry.OSTIID)
			continue
		}

		if cfg.Run.DryRun {
			fmt.Fprintf(out, "OSTI ID %d: would set DOI %s (dry run).\n", *entry.OSTIID, record.DOI)
			continue
		}
		if err := store.SetDOI(cmd.Context(), entry.ElementsID, record.DOI); err != nil {
			return err
		}
		fmt.Fprintf(out, "OSTI ID %d: DOI %s recorded.\n", *entry.OSTIID, record.DOI)
		updated++
	}

	fmt.Fprintf(out, "Backfilled %d of %d entries.\n", updated, len(missing))
	return nil
}
