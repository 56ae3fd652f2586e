package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stract/internal/api"
)

var autosuggestCmd = &cobra.Command{
	Use:   "autosuggest <prefix>",
	Short: "Complete a partial query",
	Long: `Print query completions for a prefix. Answers are cached locally.

Examples:
  stract autosuggest gola
  stract autosuggest "rust as" --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAutosuggest,
}

func init() {
	rootCmd.AddCommand(autosuggestCmd)
}

// SuggestionsCLI is the printed list of completions.
type SuggestionsCLI struct {
	Prefix      string           `json:"prefix"`
	Suggestions []api.Suggestion `json:"suggestions"`
}

// Human renders one completion per line with its highlighted part marked.
func (s SuggestionsCLI) Human() string {
	if len(s.Suggestions) == 0 {
		return "No suggestions."
	}
	lines := make([]string, 0, len(s.Suggestions))
	for _, sug := range s.Suggestions {
		if sug.Highlighted != "" {
			lines = append(lines, emphasize(sug.Highlighted))
		} else {
			lines = append(lines, sug.Raw)
		}
	}
	return strings.Join(lines, "\n")
}

func runAutosuggest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	prefix := strings.Join(args, " ")
	suggestions, err := a.lookups().Autosuggest(ctx, prefix)
	if err != nil {
		return err
	}

	output, err := FormatResponse(SuggestionsCLI{Prefix: prefix, Suggestions: suggestions}, OutputFormat(outputFormat))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}
