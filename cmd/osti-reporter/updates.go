// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var updatesCmd = &cobra.Command{
	Use:   "updates",
	Short: "Re-send changed metadata or attachments for submitted publications",
	Long: `Updates targets publications that already have an OSTI record. With
--metadata-updates it re-sends records whose source metadata changed since
submission; with --media-updates it re-sends PDFs that were replaced or whose
previous media submission failed. Both can run in one invocation.`,
	RunE: runUpdates,
}

func init() {
	updatesCmd.Flags().Bool("metadata-updates", false, "re-send changed metadata (PUT)")
	updatesCmd.Flags().Bool("media-updates", false, "re-send replaced or failed PDFs")

	rootCmd.AddCommand(updatesCmd)
}

func runUpdates(cmd *cobra.Command, args []string) error {
	metadata, _ := cmd.Flags().GetBool("metadata-updates")
	media, _ := cmd.Flags().GetBool("media-updates")
	if !metadata && !media {
		return fmt.Errorf("select at least one of --metadata-updates, --media-updates")
	}

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

	digest, err := p.RunUpdates(cmd.Context(), metadata, media)
	if err != nil {
		return err
	}

	printDigest(cmd.OutOrStdout(), digest)
	return nil
}
