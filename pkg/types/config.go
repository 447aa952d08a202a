package types

import "time"

// Environment selects between the QA and production endpoints of a data
// source. Each of the three sources is selected independently.
type Environment string

const (
	EnvProduction Environment = "production"
	EnvQA         Environment = "qa"
)

// MalformedPolicy controls what happens when a record's author or grant
// JSON does not parse: abort the run, or skip the offending item.
type MalformedPolicy string

const (
	MalformedFail MalformedPolicy = "fail"
	MalformedSkip MalformedPolicy = "skip"
)

// HTTPConfig holds shared HTTP settings used by components that make
// network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "osti-reporter/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// SourceConfig holds settings for the Elements reporting database.
type SourceConfig struct {
	// Driver is the database/sql driver name (default "sqlite3").
	Driver string `json:"driver" yaml:"driver"`

	// DSN is the connection string for the selected environment.
	DSN string `json:"dsn" yaml:"dsn"`

	// Environment selects the URL template used for derived eSchol
	// access URLs embedded in submissions.
	Environment Environment `json:"environment" yaml:"environment"`

	// StagingBatchSize is the number of ledger rows inserted per
	// staging-table transaction (default 500).
	StagingBatchSize int `json:"staging_batch_size" yaml:"staging_batch_size"`
}

// LedgerConfig holds settings for the eSchol OSTI ledger database.
type LedgerConfig struct {
	// DSN is the Postgres connection string for the selected environment.
	DSN string `json:"dsn" yaml:"dsn"`

	Environment Environment `json:"environment" yaml:"environment"`

	// WriteInterval paces consecutive ledger writes (default 3s). The
	// limiter replaces the fixed sleep the ledger historically needed
	// during high-volume bursts.
	WriteInterval time.Duration `json:"write_interval" yaml:"write_interval"`
}

// ELinkConfig holds settings for the OSTI E-Link v2 API.
type ELinkConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the API root for the selected environment, without a
	// trailing slash (e.g. "https://review.osti.gov/elink2api").
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Token is the bearer token.
	Token string `json:"token,omitempty" yaml:"token,omitempty"`

	Environment Environment `json:"environment" yaml:"environment"`

	// MaxRetries bounds 429 retries on idempotent reads. Mutating
	// calls are never retried.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// TransformConfig holds settings for the submission transformer.
type TransformConfig struct {
	// SiteOwnershipCode is OSTI's site code for the institution.
	SiteOwnershipCode string `json:"site_ownership_code" yaml:"site_ownership_code"`

	// ReportNumberPrefix is prepended to bare report numbers
	// (default "LBNL-").
	ReportNumberPrefix string `json:"report_number_prefix" yaml:"report_number_prefix"`

	// AccessLimitations is the fixed access limitation list sent with
	// every submission (default ["UNL"]).
	AccessLimitations []string `json:"access_limitations" yaml:"access_limitations"`

	// OnMalformed selects the behavior for unparsable author/grant
	// JSON (default "fail").
	OnMalformed MalformedPolicy `json:"on_malformed" yaml:"on_malformed"`
}

// RunConfig holds per-run settings owned by the CLI.
type RunConfig struct {
	// SubmissionLimit caps items per run (default 200). Items beyond
	// the cap are deferred to the next run in original order.
	SubmissionLimit int `json:"submission_limit" yaml:"submission_limit"`

	// DryRun halts the run before any network submission.
	DryRun bool `json:"dry_run" yaml:"dry_run"`

	// IDs restricts the run to specific Elements publication IDs.
	IDs []int64 `json:"ids,omitempty" yaml:"ids,omitempty"`

	// FullLogging additionally dumps the staging rows and candidate
	// query results to the run-log folder.
	FullLogging bool `json:"full_logging" yaml:"full_logging"`

	// LogDir is the parent directory for run-log folders (default "logs").
	LogDir string `json:"log_dir" yaml:"log_dir"`
}

// ReporterConfig groups all component configurations for one run.
type ReporterConfig struct {
	Source    SourceConfig    `json:"source" yaml:"source"`
	Ledger    LedgerConfig    `json:"ledger" yaml:"ledger"`
	ELink     ELinkConfig     `json:"elink" yaml:"elink"`
	Transform TransformConfig `json:"transform" yaml:"transform"`
	Run       RunConfig       `json:"run" yaml:"run"`
}
