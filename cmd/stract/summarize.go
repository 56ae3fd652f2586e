package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"stract/internal/errors"
	"stract/internal/streaming"
)

var summarizeQuery string

var summarizeCmd = &cobra.Command{
	Use:   "summarize <url>",
	Short: "Stream a summary of a result page",
	Long: `Summarize a result page for a query. In human format the summary is
printed as it streams in; json and yaml print the whole summary at the end.

Examples:
  stract summarize https://go.dev/doc/effective_go --query "go style"`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarize,
}

func init() {
	summarizeCmd.Flags().StringVar(&summarizeQuery, "query", "", "Query the summary should answer (required)")
	_ = summarizeCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(summarizeCmd)
}

// SummaryResponseCLI is the printed form of a finished summary.
type SummaryResponseCLI struct {
	Query   string `json:"query"`
	URL     string `json:"url"`
	Summary string `json:"summary"`
	Error   string `json:"error,omitempty"`
}

func runSummarize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.client.Summarize(ctx, summarizeQuery, args[0], streaming.Options{
		MaxFrameBytes: a.cfg.Streaming.MaxFrameBytes,
		Logger:        a.logger,
	})
	if err != nil {
		return err
	}
	defer sess.Cancel()

	live := OutputFormat(outputFormat) == FormatHuman
	out := cmd.OutOrStdout()

	var (
		mu        sync.Mutex
		summary   strings.Builder
		streamErr error
	)
	sess.Listen(func(ev streaming.Event) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Type {
		case streaming.EventMessage:
			summary.WriteString(ev.Data)
			if live {
				fmt.Fprint(out, ev.Data)
			}
		case streaming.EventError:
			a.logger.Warn("Summary stream error", "session", sess.ID, "error", ev.Err)
			streamErr = ev.Err
		}
	})

	select {
	case <-sess.Done():
	case <-ctx.Done():
		sess.Cancel()
		<-sess.Done()
	}

	mu.Lock()
	defer mu.Unlock()

	if live {
		fmt.Fprintln(out)
		if streamErr != nil {
			return errors.New(errors.StreamFailed, "summary interrupted", streamErr)
		}
		return nil
	}

	resp := SummaryResponseCLI{Query: summarizeQuery, URL: args[0], Summary: summary.String()}
	if streamErr != nil {
		resp.Error = streamErr.Error()
	}
	output, err := FormatResponse(resp, OutputFormat(outputFormat))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, output)
	return nil
}
