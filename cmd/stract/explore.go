package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"stract/internal/api"
)

var (
	exploreLimit   int
	explorePages   bool
	exploreChosen  []string
	exploreSimilar []string
	exportOutput   string
)

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Explore the host and page link graph",
	Long: `Query the webgraph: similar hosts, link neighbours and optic export.

Webgraph answers are cached locally; pass --no-cache to bypass.`,
}

var exploreSimilarCmd = &cobra.Command{
	Use:   "similar <host>...",
	Short: "Find hosts similar to the given ones",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExploreSimilar,
}

var exploreKnowsCmd = &cobra.Command{
	Use:   "knows <host>",
	Short: "Check whether the webgraph knows a host",
	Args:  cobra.ExactArgs(1),
	RunE:  runExploreKnows,
}

var exploreIngoingCmd = &cobra.Command{
	Use:   "ingoing <host|url>",
	Short: "List links pointing at a host (or page with --pages)",
	Args:  cobra.ExactArgs(1),
	RunE:  runExploreEdges,
}

var exploreOutgoingCmd = &cobra.Command{
	Use:   "outgoing <host|url>",
	Short: "List links leaving a host (or page with --pages)",
	Args:  cobra.ExactArgs(1),
	RunE:  runExploreEdges,
}

var exploreExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export an optic boosting the chosen and similar hosts",
	Long: `Render an optic that boosts the chosen hosts and the similar hosts
found for them.

Examples:
  stract explore export --chosen go.dev --similar pkg.go.dev,gobyexample.com
  stract explore export --chosen go.dev --output go.optic`,
	RunE: runExploreExport,
}

func init() {
	exploreSimilarCmd.Flags().IntVar(&exploreLimit, "limit", 10, "Maximum number of similar hosts")
	for _, c := range []*cobra.Command{exploreIngoingCmd, exploreOutgoingCmd} {
		c.Flags().BoolVar(&explorePages, "pages", false, "Treat the argument as a page URL instead of a host")
	}
	exploreExportCmd.Flags().StringSliceVar(&exploreChosen, "chosen", nil, "Hosts picked by the user")
	exploreExportCmd.Flags().StringSliceVar(&exploreSimilar, "similar", nil, "Similar hosts to include")
	exploreExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write the optic to a file instead of stdout")
	_ = exploreExportCmd.MarkFlagRequired("chosen")

	exploreCmd.AddCommand(exploreSimilarCmd, exploreKnowsCmd, exploreIngoingCmd, exploreOutgoingCmd, exploreExportCmd)
	rootCmd.AddCommand(exploreCmd)
}

// SimilarHostsCLI is the printed list of similar hosts.
type SimilarHostsCLI struct {
	Hosts   []string         `json:"hosts"`
	Similar []api.ScoredHost `json:"similar"`
}

func (s SimilarHostsCLI) Human() string {
	if len(s.Similar) == 0 {
		return "No similar hosts."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Similar to %s:\n", strings.Join(s.Hosts, ", "))
	for _, h := range s.Similar {
		fmt.Fprintf(&b, "  %-40s %.3f\n", h.Host, h.Score)
	}
	return strings.TrimRight(b.String(), "\n")
}

// KnowsHostCLI is the printed membership answer.
type KnowsHostCLI struct {
	Query string `json:"query"`
	Known bool   `json:"known"`
	Host  string `json:"host,omitempty"`
}

func (k KnowsHostCLI) Human() string {
	if !k.Known {
		return fmt.Sprintf("%s is not in the webgraph", k.Query)
	}
	return fmt.Sprintf("%s is known as %s", k.Query, k.Host)
}

// EdgesCLI is the printed list of link edges.
type EdgesCLI struct {
	Node      string         `json:"node"`
	Direction string         `json:"direction"`
	Edges     []api.FullEdge `json:"edges"`
}

func (e EdgesCLI) Human() string {
	if len(e.Edges) == 0 {
		return fmt.Sprintf("No %s links for %s.", e.Direction, e.Node)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s links for %s:\n", len(e.Edges), e.Direction, e.Node)
	for _, edge := range e.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf(" (%s)", truncate(edge.Label, 60))
		}
		fmt.Fprintf(&b, "  %s -> %s%s\n", edge.From.Name, edge.To.Name, label)
	}
	return strings.TrimRight(b.String(), "\n")
}

func runExploreSimilar(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	similar, err := a.lookups().SimilarHosts(ctx, api.SimilarHostsQuery{Hosts: args, TopN: exploreLimit})
	if err != nil {
		return err
	}
	return printResponse(cmd, SimilarHostsCLI{Hosts: args, Similar: similar})
}

func runExploreKnows(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.lookups().KnowsHost(ctx, args[0])
	if err != nil {
		return err
	}
	return printResponse(cmd, KnowsHostCLI{Query: args[0], Known: res.Known(), Host: res.Host})
}

func runExploreEdges(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	l := a.lookups()
	ingoing := cmd.Name() == "ingoing"
	var edges []api.FullEdge
	switch {
	case ingoing && explorePages:
		edges, err = l.PageIngoing(ctx, args[0])
	case ingoing:
		edges, err = l.HostIngoing(ctx, args[0])
	case explorePages:
		edges, err = l.PageOutgoing(ctx, args[0])
	default:
		edges, err = l.HostOutgoing(ctx, args[0])
	}
	if err != nil {
		return err
	}

	direction := "outgoing"
	if ingoing {
		direction = "ingoing"
	}
	return printResponse(cmd, EdgesCLI{Node: args[0], Direction: direction, Edges: edges})
}

func runExploreExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	optic, err := a.lookups().ExploreExport(ctx, api.ExploreExportQuery{ChosenHosts: exploreChosen, SimilarHosts: exploreSimilar})
	if err != nil {
		return err
	}
	return writeOptic(cmd, optic)
}

// writeOptic prints an exported optic or writes it to --output.
func writeOptic(cmd *cobra.Command, optic string) error {
	if exportOutput == "" {
		fmt.Fprintln(cmd.OutOrStdout(), optic)
		return nil
	}
	if err := os.WriteFile(exportOutput, []byte(optic), 0o644); err != nil {
		return fmt.Errorf("failed to write optic: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Optic written to %s\n", exportOutput)
	return nil
}

func printResponse(cmd *cobra.Command, resp interface{}) error {
	output, err := FormatResponse(resp, OutputFormat(outputFormat))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}
