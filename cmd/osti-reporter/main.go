// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the osti-reporter CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/osti-reporter/internal/secrets"
	"github.com/pdiddy/osti-reporter/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets map[string]string

const (
	elinkProductionURL = "https://www.osti.gov/elink2api"
	elinkReviewURL     = "https://review.osti.gov/elink2api"

	defaultUserAgent = "osti-reporter/0.1"
)

// rootCmd is the base command for the osti-reporter CLI.
var rootCmd = &cobra.Command{
	Use:   "osti-reporter",
	Short: "Report LBNL publications from eScholarship to DOE OSTI",
	Long: `osti-reporter reconciles publication metadata between the Elements
reporting database, the eSchol OSTI ledger, and the DOE OSTI E-Link v2 API.

The report command submits publications OSTI has never seen (metadata first,
then the PDF). The updates command re-sends metadata or attachments that
changed since their original submission. Status and backfill-dois are
read-side maintenance commands.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A local .env is optional; real deployments use the config
		// file plus the secrets directory.
		_ = godotenv.Load()

		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./osti-reporter.yaml or ~/.config/osti-reporter/config.yaml)")
	rootCmd.PersistentFlags().Bool("source-qa", false, "use the QA Elements reporting database")
	rootCmd.PersistentFlags().Bool("elink-qa", false, "use the OSTI review (test) API")
	rootCmd.PersistentFlags().Bool("ledger-qa", false, "use the QA eSchol OSTI ledger")
	rootCmd.PersistentFlags().Bool("dry-run", false, "halt before any submission; log what would be sent")
	rootCmd.PersistentFlags().Int64Slice("ids", nil, "restrict the run to specific Elements publication IDs")
	rootCmd.PersistentFlags().Int("limit", 0, "max items per run (default 200)")
	rootCmd.PersistentFlags().Bool("full-logging", false, "also dump staging rows and candidate tables to the run log")
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose (development) log output")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("osti-reporter")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "osti-reporter"))
		}
	}

	viper.SetDefault("source.driver", "sqlite3")
	viper.SetDefault("source.staging_batch_size", 500)
	viper.SetDefault("ledger.write_interval", 3*time.Second)
	viper.SetDefault("elink.timeout", 60*time.Second)
	viper.SetDefault("elink.max_retries", 5)
	viper.SetDefault("transform.site_ownership_code", "LBNLSCH")
	viper.SetDefault("transform.report_number_prefix", "LBNL-")
	viper.SetDefault("transform.access_limitations", []string{"UNL"})
	viper.SetDefault("transform.on_malformed", string(types.MalformedFail))
	viper.SetDefault("run.submission_limit", 200)
	viper.SetDefault("run.log_dir", "logs")

	viper.SetEnvPrefix("OSTI_REPORTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// environment maps a QA flag to the environment selector.
func environment(qa bool) types.Environment {
	if qa {
		return types.EnvQA
	}
	return types.EnvProduction
}

// buildConfig assembles the run configuration from the config file,
// environment variables, flags, and the secrets directory (in that
// order of precedence for credentials: explicit config wins).
func buildConfig(cmd *cobra.Command) (types.ReporterConfig, error) {
	sourceQA, _ := cmd.Flags().GetBool("source-qa")
	elinkQA, _ := cmd.Flags().GetBool("elink-qa")
	ledgerQA, _ := cmd.Flags().GetBool("ledger-qa")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	ids, _ := cmd.Flags().GetInt64Slice("ids")
	limit, _ := cmd.Flags().GetInt("limit")
	fullLogging, _ := cmd.Flags().GetBool("full-logging")

	cfg := types.ReporterConfig{
		Source: types.SourceConfig{
			Driver:           viper.GetString("source.driver"),
			DSN:              viper.GetString("source.dsn"),
			Environment:      environment(sourceQA),
			StagingBatchSize: viper.GetInt("source.staging_batch_size"),
		},
		Ledger: types.LedgerConfig{
			DSN:           viper.GetString("ledger.dsn"),
			Environment:   environment(ledgerQA),
			WriteInterval: viper.GetDuration("ledger.write_interval"),
		},
		ELink: types.ELinkConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("elink.timeout"),
				UserAgent: defaultUserAgent,
			},
			BaseURL:     viper.GetString("elink.base_url"),
			Token:       viper.GetString("elink.token"),
			Environment: environment(elinkQA),
			MaxRetries:  viper.GetInt("elink.max_retries"),
		},
		Transform: types.TransformConfig{
			SiteOwnershipCode:  viper.GetString("transform.site_ownership_code"),
			ReportNumberPrefix: viper.GetString("transform.report_number_prefix"),
			AccessLimitations:  viper.GetStringSlice("transform.access_limitations"),
			OnMalformed:        types.MalformedPolicy(viper.GetString("transform.on_malformed")),
		},
		Run: types.RunConfig{
			SubmissionLimit: viper.GetInt("run.submission_limit"),
			DryRun:          dryRun,
			IDs:             ids,
			FullLogging:     fullLogging,
			LogDir:          viper.GetString("run.log_dir"),
		},
	}

	if limit > 0 {
		cfg.Run.SubmissionLimit = limit
	}
	if cfg.ELink.BaseURL == "" {
		cfg.ELink.BaseURL = elinkProductionURL
		if elinkQA {
			cfg.ELink.BaseURL = elinkReviewURL
		}
	}

	secrets.Apply(&cfg, loadedSecrets)

	if cfg.Source.DSN == "" {
		return cfg, fmt.Errorf("no source DSN configured (set source.dsn or add a source-dsn secret)")
	}
	if cfg.Ledger.DSN == "" {
		return cfg, fmt.Errorf("no ledger DSN configured (set ledger.dsn or add a ledger-dsn secret)")
	}
	return cfg, nil
}

// newLogger builds the run's structured logger.
func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
