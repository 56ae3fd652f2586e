package main

import (
	"github.com/spf13/cobra"

	"stract/internal/api"
)

var (
	hostsLike    []string
	hostsDislike []string
	hostsBlock   []string
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Work with host preferences",
}

var hostsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export host preferences as an optic",
	Long: `Render liked, disliked and blocked hosts as an optic program.

Examples:
  stract hosts export --like go.dev --block w3schools.com
  stract hosts export --dislike pinterest.com -o prefs.optic`,
	RunE: runHostsExport,
}

func init() {
	f := hostsExportCmd.Flags()
	f.StringSliceVar(&hostsLike, "like", nil, "Hosts to boost")
	f.StringSliceVar(&hostsDislike, "dislike", nil, "Hosts to demote")
	f.StringSliceVar(&hostsBlock, "block", nil, "Hosts to remove")
	f.StringVarP(&exportOutput, "output", "o", "", "Write the optic to a file instead of stdout")

	hostsCmd.AddCommand(hostsExportCmd)
	rootCmd.AddCommand(hostsCmd)
}

func runHostsExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rankings := api.HostRankings{Liked: hostsLike, Disliked: hostsDislike, Blocked: hostsBlock}
	optic, err := a.lookups().HostsExport(ctx, rankings)
	if err != nil {
		return err
	}
	return writeOptic(cmd, optic)
}
