// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/osti-reporter/internal/ledger"
)

var exportCmd = &cobra.Command{
	Use:   "export-ledger [file]",
	Short: "Export the eSchol OSTI ledger as YAML",
	Long: `Export-ledger dumps every ledger entry as a YAML document, to the
given file or stdout. Operators diff exports across runs to audit ledger
changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	store, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	return store.ExportYAML(cmd.Context(), out)
}
