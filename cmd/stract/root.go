package main

import (
	"github.com/spf13/cobra"

	"stract/internal/version"
)

var (
	configPath   string
	verbosity    int
	quiet        bool
	outputFormat string
	metricsAddr  string
	logFile      string
	noCache      bool
)

var rootCmd = &cobra.Command{
	Use:   "stract",
	Short: "Stract - command line client for the Stract search engine",
	Long: `stract queries a Stract search backend from the terminal.

A search fans out into the primary result list plus widget, sidebar,
discussions and spelling enrichment, and merges them into one answer.
Summaries stream back token by token.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("stract version {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default: ~/.stract/config.toml)")
	pf.CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	pf.BoolVar(&quiet, "quiet", false, "Suppress all log output")
	pf.StringVar(&outputFormat, "format", string(FormatHuman), "Output format (human, json, yaml)")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")
	pf.StringVar(&logFile, "log-file", "", "Also write JSON logs to this file")
	pf.BoolVar(&noCache, "no-cache", false, "Bypass the local response cache")
}
