package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stract/internal/api"
	"stract/internal/config"
	"stract/internal/errors"
	"stract/internal/orchestrator"
	"stract/internal/query"
	"stract/internal/transport"
)

var (
	searchPage         int
	searchSafe         bool
	searchOptic        string
	searchRegion       string
	searchLike         []string
	searchDislike      []string
	searchBlock        []string
	searchPolicy       string
	searchNumResults   int
	searchForwardedFor string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the web",
	Long: `Run a search and print the merged result.

Page 1 also fetches a widget, a sidebar and forum discussions; every page
gets a spelling check. Discussions are skipped when an optic is given.

Examples:
  stract search rust async runtime
  stract search golang generics --page 2
  stract search recipes --region dk --like arla.dk --block pinterest.com
  stract search "site search" --optic https://example.com/blogs.optic
  stract search '!w golang' --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.IntVarP(&searchPage, "page", "p", 1, "Result page (1-based)")
	f.BoolVar(&searchSafe, "safe-search", false, "Filter adult content")
	f.StringVar(&searchOptic, "optic", "", "Optic program or URL")
	f.StringVar(&searchRegion, "region", "", "Region name or code (all, dk, fr, de, es, us)")
	f.StringSliceVar(&searchLike, "like", nil, "Hosts to boost")
	f.StringSliceVar(&searchDislike, "dislike", nil, "Hosts to demote")
	f.StringSliceVar(&searchBlock, "block", nil, "Hosts to remove")
	f.StringVar(&searchPolicy, "policy", "", "Enrichment failure policy (degrade, joint)")
	f.IntVar(&searchNumResults, "num-results", 0, "Results per page (default from config)")
	f.StringVar(&searchForwardedFor, "forwarded-for", "", "Client address sent as X-Forwarded-For")
	rootCmd.AddCommand(searchCmd)
}

// buildSearchValues encodes the command line the way the search page's URL
// would carry it, so both go through the same normalizer.
func buildSearchValues(args []string) (url.Values, error) {
	v := url.Values{}
	v.Set(query.ParamQuery, strings.Join(args, " "))
	v.Set(query.ParamPage, strconv.Itoa(searchPage))
	if searchSafe {
		v.Set(query.ParamSafeSearch, "true")
	}
	if searchOptic != "" {
		v.Set(query.ParamOptic, searchOptic)
	}
	if searchRegion != "" {
		if _, ok := api.ParseRegion(searchRegion); !ok {
			return nil, fmt.Errorf("unknown region %q", searchRegion)
		}
		v.Set(query.ParamRegion, searchRegion)
	}

	rankings := api.HostRankings{Liked: searchLike, Disliked: searchDislike, Blocked: searchBlock}
	if !rankings.IsEmpty() {
		enc, err := query.EncodeHostRankings(rankings)
		if err != nil {
			return nil, err
		}
		v.Set(query.ParamRankings, enc)
	}
	return v, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx := cmd.Context()

	values, err := buildSearchValues(args)
	if err != nil {
		return err
	}
	out := query.Normalize(query.FromURL(values), nil)
	if !out.Proceed() {
		return errors.New(errors.QueryEmpty, "nothing to search for", nil)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if searchPolicy != "" {
		if searchPolicy != config.PolicyDegrade && searchPolicy != config.PolicyJoint {
			return fmt.Errorf("unknown policy %q (want %s or %s)", searchPolicy, config.PolicyDegrade, config.PolicyJoint)
		}
		a.cfg.Search.FailurePolicy = searchPolicy
	}
	if searchNumResults > 0 {
		a.cfg.Search.NumResults = searchNumResults
	}

	var opts []transport.CallOption
	if searchForwardedFor != "" {
		opts = append(opts, transport.WithForwardedFor(searchForwardedFor))
	}

	agg, err := a.orchestrator().Resolve(ctx, out.Spec, opts...)
	if err != nil {
		return err
	}

	output, err := FormatResponse(convertAggregate(agg), OutputFormat(outputFormat))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), output)

	a.logger.Debug("Search completed",
		"query", out.Spec.Query,
		"variant", agg.Kind,
		"degraded", len(agg.Degraded),
		"duration", time.Since(start).Milliseconds(),
	)
	return nil
}

// SearchResponseCLI is the printed form of a resolved search.
type SearchResponseCLI struct {
	Query            string        `json:"query"`
	Page             int           `json:"page"`
	Link             string        `json:"link"`
	Kind             string        `json:"kind"`
	RedirectTo       string        `json:"redirectTo,omitempty"`
	NumHits          *int          `json:"numHits,omitempty"`
	HasMoreResults   bool          `json:"hasMoreResults"`
	SearchDurationMs *int64        `json:"searchDurationMs,omitempty"`
	SpellCorrection  string        `json:"spellCorrection,omitempty"`
	Widget           *api.Widget   `json:"widget,omitempty"`
	Sidebar          *api.Sidebar  `json:"sidebar,omitempty"`
	Results          []ResultCLI   `json:"results,omitempty"`
	Discussions      []ResultCLI   `json:"discussions,omitempty"`
	Degraded         []DegradedCLI `json:"degraded,omitempty"`
}

// ResultCLI is one printed hit.
type ResultCLI struct {
	Title            string `json:"title"`
	URL              string `json:"url"`
	Site             string `json:"site"`
	Snippet          string `json:"snippet,omitempty"`
	LikelyHasAds     bool   `json:"likelyHasAds,omitempty"`
	LikelyHasPaywall bool   `json:"likelyHasPaywall,omitempty"`
}

// DegradedCLI names an enrichment call that was dropped.
type DegradedCLI struct {
	Kind  string `json:"kind"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

func convertAggregate(agg *orchestrator.Aggregate) *SearchResponseCLI {
	resp := &SearchResponseCLI{
		Query: agg.Spec.Query,
		Page:  agg.Spec.Page,
		Link:  "/search?" + agg.Spec.URLValues().Encode(),
		Kind:  string(agg.Kind),
	}

	switch agg.Kind {
	case orchestrator.VariantBang:
		resp.RedirectTo = agg.RedirectTo()
	case orchestrator.VariantWebsites:
		resp.NumHits = agg.Websites.NumHits
		resp.HasMoreResults = agg.Websites.HasMoreResults
		resp.SearchDurationMs = agg.SearchDurationMs
		resp.Widget = agg.Widget
		resp.Sidebar = agg.Sidebar
		resp.Results = convertPages(agg.Websites.Webpages)
		resp.Discussions = convertPages(agg.Discussions)
		if agg.SpellCorrection != nil {
			resp.SpellCorrection = agg.SpellCorrection.Raw
		}
		for _, d := range agg.Degraded {
			resp.Degraded = append(resp.Degraded, DegradedCLI{
				Kind:  string(d.Kind),
				Code:  string(errors.CodeOf(d.Err)),
				Error: d.Err.Error(),
			})
		}
	}
	return resp
}

func convertPages(pages []api.DisplayedWebpage) []ResultCLI {
	if len(pages) == 0 {
		return nil
	}
	out := make([]ResultCLI, 0, len(pages))
	for _, p := range pages {
		out = append(out, ResultCLI{
			Title:            stripMarkup(p.Title),
			URL:              p.URL,
			Site:             p.Site,
			Snippet:          p.Snippet.Plain(),
			LikelyHasAds:     p.LikelyHasAds,
			LikelyHasPaywall: p.LikelyHasPaywall,
		})
	}
	return out
}

// Human renders the response for a terminal.
func (r *SearchResponseCLI) Human() string {
	var b strings.Builder

	if r.Kind == string(orchestrator.VariantBang) {
		fmt.Fprintf(&b, "Redirect: %s\n", r.RedirectTo)
		return b.String()
	}

	fmt.Fprintf(&b, "Results for %q (page %d", r.Query, r.Page)
	if r.SearchDurationMs != nil {
		fmt.Fprintf(&b, ", %dms", *r.SearchDurationMs)
	}
	b.WriteString(")\n")
	if r.SpellCorrection != "" {
		fmt.Fprintf(&b, "Did you mean: %s\n", r.SpellCorrection)
	}
	b.WriteString(strings.Repeat("=", 60) + "\n")

	if r.Widget != nil {
		fmt.Fprintf(&b, "\n[%s]\n", r.Widget.Type)
		for _, k := range sortedKeys(r.Widget.Fields) {
			fmt.Fprintf(&b, "  %s: %v\n", k, r.Widget.Fields[k])
		}
	}

	if len(r.Results) == 0 {
		b.WriteString("\nNo results.\n")
	}
	for i, res := range r.Results {
		fmt.Fprintf(&b, "\n%d. %s\n   %s\n", i+1, res.Title, res.URL)
		if res.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", truncate(res.Snippet, 160))
		}
	}
	if r.HasMoreResults {
		fmt.Fprintf(&b, "\nMore results: stract search %q --page %d\n", r.Query, r.Page+1)
	}

	if r.Sidebar != nil {
		b.WriteString("\nSidebar:\n")
		if title := r.Sidebar.Title(); title != "" {
			fmt.Fprintf(&b, "  %s (%s)\n", title, r.Sidebar.Type)
		} else {
			fmt.Fprintf(&b, "  %s\n", r.Sidebar.Type)
		}
	}

	if len(r.Discussions) > 0 {
		b.WriteString("\nDiscussions:\n")
		for _, d := range r.Discussions {
			fmt.Fprintf(&b, "  - %s\n    %s\n", d.Title, d.URL)
		}
	}

	if len(r.Degraded) > 0 {
		b.WriteString("\nUnavailable:\n")
		for _, d := range r.Degraded {
			fmt.Fprintf(&b, "  ! %s (%s)\n", d.Kind, d.Code)
		}
	}

	return b.String()
}
