// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the retrieval-engine CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/retrieval-engine/internal/secrets"
	"github.com/pdiddy/retrieval-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns fallback when non-empty, otherwise the named secret.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the retrieval-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "retrieval-engine",
	Short: "Adaptive literature retrieval and ranking pipeline",
	Long: `retrieval-engine queries multiple academic APIs (arXiv, OpenAlex,
Semantic Scholar, Crossref) for papers matching a research question, scores
and deduplicates the combined pool, and iteratively relaxes a field-specific
quality threshold until the requested result count is met or a budget runs
out.

Use "search" for a one-shot run from the terminal and "serve" to expose the
pipeline over HTTP with streaming progress events.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./retrieval-engine.yaml or ~/.config/retrieval-engine/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("retrieval-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "retrieval-engine"))
		}
	}

	viper.SetEnvPrefix("RETRIEVAL_ENGINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// pipelineConfig builds the full configuration: config file values, then
// defaults, then secrets for keys the file left empty.
func pipelineConfig() (types.PipelineConfig, error) {
	var cfg types.PipelineConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing configuration: %w", err)
	}

	// All connectors default on when the config file says nothing.
	if !viper.IsSet("source") {
		cfg.Source.EnableArxiv = true
		cfg.Source.EnableOpenAlex = true
		cfg.Source.EnableSemanticScholar = true
		cfg.Source.EnableCrossref = true
	}

	cfg.ApplyDefaults()
	cfg.Source.SemanticScholarAPIKey = secretDefault("semantic-scholar-api-key", cfg.Source.SemanticScholarAPIKey)
	cfg.Source.Email = secretDefault("contact-email", cfg.Source.Email)
	cfg.Scoring.OpenAIAPIKey = secretDefault("openai-api-key", cfg.Scoring.OpenAIAPIKey)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
