package api

import (
	"fmt"
	"strings"

	"stract/internal/transport"
)

// Region restricts results to one market.
type Region string

const (
	RegionAll     Region = "All"
	RegionDenmark Region = "Denmark"
	RegionFrance  Region = "France"
	RegionGermany Region = "Germany"
	RegionSpain   Region = "Spain"
	RegionUS      Region = "US"
)

// Regions lists every region the backend accepts.
var Regions = []Region{RegionAll, RegionDenmark, RegionFrance, RegionGermany, RegionSpain, RegionUS}

var regionCodes = map[string]Region{
	"all": RegionAll,
	"dk":  RegionDenmark,
	"fr":  RegionFrance,
	"de":  RegionGermany,
	"es":  RegionSpain,
	"us":  RegionUS,
}

// ParseRegion accepts a region name or its two-letter code, case-insensitively.
func ParseRegion(s string) (Region, bool) {
	s = strings.TrimSpace(s)
	for _, r := range Regions {
		if strings.EqualFold(s, string(r)) {
			return r, true
		}
	}
	r, ok := regionCodes[strings.ToLower(s)]
	return r, ok
}

// HostRankings holds the user's per-host preferences.
type HostRankings struct {
	Liked    []string `json:"liked"`
	Disliked []string `json:"disliked"`
	Blocked  []string `json:"blocked"`
}

// NewHostRankings returns rankings with every set empty but non-nil.
func NewHostRankings() HostRankings {
	return HostRankings{Liked: []string{}, Disliked: []string{}, Blocked: []string{}}
}

// Normalized returns a copy whose nil sets are replaced with empty ones.
func (h HostRankings) Normalized() HostRankings {
	out := NewHostRankings()
	out.Liked = append(out.Liked, h.Liked...)
	out.Disliked = append(out.Disliked, h.Disliked...)
	out.Blocked = append(out.Blocked, h.Blocked...)
	return out
}

// IsEmpty reports whether no host has a preference.
func (h HostRankings) IsEmpty() bool {
	return len(h.Liked) == 0 && len(h.Disliked) == 0 && len(h.Blocked) == 0
}

// SearchQuery is the request body of the search operation.
type SearchQuery struct {
	Query                string        `json:"query"`
	Page                 int           `json:"page"`
	NumResults           int           `json:"numResults"`
	Optic                string        `json:"optic,omitempty"`
	SelectedRegion       *Region       `json:"selectedRegion,omitempty"`
	SafeSearch           bool          `json:"safeSearch"`
	HostRankings         *HostRankings `json:"hostRankings,omitempty"`
	FlattenResponse      bool          `json:"flattenResponse"`
	ReturnRankingSignals bool          `json:"returnRankingSignals"`
	CountResults         bool          `json:"countResults"`
}

// DefaultNumResults is the backend's default page size.
const DefaultNumResults = 20

// NewSearchQuery returns a query with the backend defaults applied.
// page is 0-based.
func NewSearchQuery(query string, page, numResults int) SearchQuery {
	if numResults <= 0 {
		numResults = DefaultNumResults
	}
	return SearchQuery{
		Query:           query,
		Page:            page,
		NumResults:      numResults,
		FlattenResponse: true,
	}
}

// ResultType discriminates SearchResult.
type ResultType string

const (
	ResultWebsites ResultType = "websites"
	ResultBang     ResultType = "bang"
)

// SearchResult is either a websites result or a bang redirect.
// Exactly one of Websites and Bang is set, matching Type.
type SearchResult struct {
	Type     ResultType
	Websites *WebsitesResult
	Bang     *BangHit
}

// UnmarshalJSON decodes the backend's internally tagged representation.
func (r *SearchResult) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type ResultType `json:"type"`
	}
	if err := transport.Unmarshal(data, &probe); err != nil {
		return err
	}

	switch probe.Type {
	case ResultWebsites:
		var w WebsitesResult
		if err := transport.Unmarshal(data, &w); err != nil {
			return err
		}
		*r = SearchResult{Type: ResultWebsites, Websites: &w}
	case ResultBang:
		var b BangHit
		if err := transport.Unmarshal(data, &b); err != nil {
			return err
		}
		*r = SearchResult{Type: ResultBang, Bang: &b}
	default:
		return fmt.Errorf("unknown search result type %q", probe.Type)
	}
	return nil
}

// MarshalJSON encodes the result with its type tag inline.
func (r SearchResult) MarshalJSON() ([]byte, error) {
	switch r.Type {
	case ResultWebsites:
		return transport.Marshal(struct {
			Type ResultType `json:"type"`
			*WebsitesResult
		}{r.Type, r.Websites})
	case ResultBang:
		return transport.Marshal(struct {
			Type ResultType `json:"type"`
			*BangHit
		}{r.Type, r.Bang})
	default:
		return nil, fmt.Errorf("unknown search result type %q", r.Type)
	}
}

// WebsitesResult is a page of ranked webpages.
type WebsitesResult struct {
	Webpages         []DisplayedWebpage `json:"webpages"`
	NumHits          *int               `json:"numHits,omitempty"`
	SearchDurationMs int64              `json:"searchDurationMs"`
	HasMoreResults   bool               `json:"hasMoreResults"`
}

// DisplayedWebpage is one ranked hit.
type DisplayedWebpage struct {
	Title            string   `json:"title"`
	URL              string   `json:"url"`
	Site             string   `json:"site"`
	Domain           string   `json:"domain"`
	PrettyURL        string   `json:"prettyUrl"`
	Snippet          Snippet  `json:"snippet"`
	LikelyHasAds     bool     `json:"likelyHasAds"`
	LikelyHasPaywall bool     `json:"likelyHasPaywall"`
	Score            *float64 `json:"score,omitempty"`
}

// Snippet is the excerpt shown under a hit.
type Snippet struct {
	Type string       `json:"type"`
	Date string       `json:"date,omitempty"`
	Text *TextSnippet `json:"text,omitempty"`
}

// TextSnippet is a sequence of plain and highlighted fragments.
type TextSnippet struct {
	Fragments []TextFragment `json:"fragments"`
}

// TextFragment is a run of snippet text.
type TextFragment struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// Plain joins the fragments without highlighting.
func (s Snippet) Plain() string {
	if s.Text == nil {
		return ""
	}
	var sb strings.Builder
	for _, f := range s.Text.Fragments {
		sb.WriteString(f.Text)
	}
	return sb.String()
}

// BangHit is a query that resolves straight to a redirect target.
type BangHit struct {
	Bang       Bang   `json:"bang"`
	RedirectTo string `json:"redirectTo"`
}

// Bang describes the matched bang.
type Bang struct {
	Category    string   `json:"c,omitempty"`
	Subcategory string   `json:"sc,omitempty"`
	Domain      string   `json:"d,omitempty"`
	Rank        *float64 `json:"r,omitempty"`
	Site        string   `json:"s,omitempty"`
	Tag         string   `json:"t"`
	URL         string   `json:"u"`
}

// WidgetQuery is the request body of search-widget.
type WidgetQuery struct {
	Query string `json:"query"`
}

// Widget is a tagged instant answer (calculator, thesaurus, ...). Fields
// holds everything except the tag.
type Widget struct {
	Type   string
	Fields map[string]any
}

func (w *Widget) UnmarshalJSON(data []byte) error {
	t, fields, err := decodeTagged(data)
	if err != nil {
		return err
	}
	*w = Widget{Type: t, Fields: fields}
	return nil
}

func (w Widget) MarshalJSON() ([]byte, error) {
	return encodeTagged(w.Type, w.Fields)
}

// SidebarQuery is the request body of search-sidebar.
type SidebarQuery struct {
	Query string `json:"query"`
}

// Sidebar is a tagged side panel (entity, stackOverflow, ...).
type Sidebar struct {
	Type   string
	Fields map[string]any
}

func (s *Sidebar) UnmarshalJSON(data []byte) error {
	t, fields, err := decodeTagged(data)
	if err != nil {
		return err
	}
	*s = Sidebar{Type: t, Fields: fields}
	return nil
}

func (s Sidebar) MarshalJSON() ([]byte, error) {
	return encodeTagged(s.Type, s.Fields)
}

// Title returns the sidebar's title field when it has one.
func (s Sidebar) Title() string {
	v, _ := s.Fields["title"].(string)
	return v
}

func decodeTagged(data []byte) (string, map[string]any, error) {
	var fields map[string]any
	if err := transport.Unmarshal(data, &fields); err != nil {
		return "", nil, err
	}
	t, ok := fields["type"].(string)
	if !ok {
		return "", nil, fmt.Errorf("missing type tag")
	}
	delete(fields, "type")
	return t, fields, nil
}

func encodeTagged(t string, fields map[string]any) ([]byte, error) {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["type"] = t
	return transport.Marshal(out)
}

// SpellcheckQuery is the request body of search-spellcheck.
type SpellcheckQuery struct {
	Query string `json:"query"`
}

// SpellCorrection is a suggested rewrite of the query. Highlighted marks the
// corrected terms with markup.
type SpellCorrection struct {
	Raw         string `json:"raw"`
	Highlighted string `json:"highlighted"`
}

// Suggestion is one autosuggest completion.
type Suggestion struct {
	Raw         string `json:"raw"`
	Highlighted string `json:"highlighted"`
}

// Node is a host or page in the webgraph.
type Node struct {
	Name string `json:"name"`
}

// FullEdge is a labelled link between two nodes.
type FullEdge struct {
	From  Node   `json:"from"`
	To    Node   `json:"to"`
	Label string `json:"label"`
}

// SimilarHostsQuery is the request body of host-similar.
type SimilarHostsQuery struct {
	Hosts []string `json:"hosts"`
	TopN  int      `json:"topN"`
}

// ScoredHost is a host with its similarity score.
type ScoredHost struct {
	Host        string  `json:"host"`
	Score       float64 `json:"score"`
	Description string  `json:"description,omitempty"`
}

// KnowsType discriminates KnowsHost.
type KnowsType string

const (
	HostKnown   KnowsType = "known"
	HostUnknown KnowsType = "unknown"
)

// KnowsHost reports whether the webgraph knows a host. An unknown host is a
// normal result, not an error.
type KnowsHost struct {
	Type KnowsType `json:"type"`
	Host string    `json:"host,omitempty"`
}

// Known reports whether the host is in the webgraph.
func (k KnowsHost) Known() bool {
	return k.Type == HostKnown
}

// ExploreExportQuery is the request body of explore-export.
type ExploreExportQuery struct {
	ChosenHosts  []string `json:"chosenHosts"`
	SimilarHosts []string `json:"similarHosts"`
}
