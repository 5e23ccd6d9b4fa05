// Package main implements the marginalia CLI: statistical enrichment and
// two-phase scholarly annotation over a book corpus.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/marginalia/internal/config"
	"github.com/fyrsmithlabs/marginalia/internal/logging"
)

var (
	// cfgFile is the optional YAML config file path
	cfgFile string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "marginalia",
	Short: "Chapter enrichment and scholarly annotation for a book corpus",
	Long: `marginalia enriches book-chapter metadata with statistical
cross-references, then drives a two-phase model conversation that turns each
chapter into a scholarly annotation grounded in companion books.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the MARGINALIA_ prefix")
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(annotateCmd)
	rootCmd.AddCommand(cacheCmd)
}

// setup loads configuration and builds the root logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, logger, nil
}

// writeJSON writes v atomically: temp file in the target directory, then
// rename.
func writeJSON(path string, v any) error {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".marginalia-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
