package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"stract/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if OutputFormat(outputFormat) == FormatHuman {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
			return nil
		}
		return printResponse(cmd, VersionCLI{
			Version:   version.Version,
			Commit:    version.Commit,
			BuildDate: version.BuildDate,
			GoVersion: runtime.Version(),
			UserAgent: version.UserAgent(),
		})
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// VersionCLI is the structured version output.
type VersionCLI struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	UserAgent string `json:"userAgent"`
}
