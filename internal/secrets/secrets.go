// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key
// name and the file contents (trimmed) are the value.
//
// Supported key files: elink-token, elink-qa-token, source-dsn,
// source-qa-dsn, ledger-dsn, ledger-qa-dsn.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/osti-reporter/pkg/types"
)

// Load reads all files in dir and returns a map of filename to trimmed
// contents. A missing directory or missing files are not errors; Load
// returns an empty map. Unreadable files produce a warning on stderr but
// do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Apply fills empty credential fields of cfg from the loaded secrets,
// honoring each component's environment selector. Values already present
// in cfg (from the config file or environment variables) win.
func Apply(cfg *types.ReporterConfig, secrets map[string]string) {
	pick := func(env types.Environment, prod, qa string) string {
		if env == types.EnvQA {
			return secrets[qa]
		}
		return secrets[prod]
	}

	if cfg.ELink.Token == "" {
		cfg.ELink.Token = pick(cfg.ELink.Environment, "elink-token", "elink-qa-token")
	}
	if cfg.Source.DSN == "" {
		cfg.Source.DSN = pick(cfg.Source.Environment, "source-dsn", "source-qa-dsn")
	}
	if cfg.Ledger.DSN == "" {
		cfg.Ledger.DSN = pick(cfg.Ledger.Environment, "ledger-dsn", "ledger-qa-dsn")
	}
}
