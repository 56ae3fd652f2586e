package api

import (
	"net/http"
	"reflect"
	"testing"
)

func TestEndpoints(t *testing.T) {
	tests := []struct {
		op       Operation
		method   string
		template string
		request  reflect.Type
		response reflect.Type
		kind     BodyKind
	}{
		{OpAutosuggest, http.MethodPost, "/autosuggest?q=", nil, reflect.TypeOf([]Suggestion{}), KindJSON},
		{OpSearch, http.MethodPost, "/search", reflect.TypeOf(SearchQuery{}), reflect.TypeOf(SearchResult{}), KindJSON},
		{OpSearchWidget, http.MethodPost, "/search/widget", reflect.TypeOf(WidgetQuery{}), reflect.TypeOf(&Widget{}), KindJSON},
		{OpSearchSidebar, http.MethodPost, "/search/sidebar", reflect.TypeOf(SidebarQuery{}), reflect.TypeOf(&Sidebar{}), KindJSON},
		{OpSearchSpellcheck, http.MethodPost, "/search/spellcheck", reflect.TypeOf(SpellcheckQuery{}), reflect.TypeOf(&SpellCorrection{}), KindJSON},
		{OpSummarize, http.MethodGet, "/summarize?query=&url=", nil, reflect.TypeOf(""), KindEventStream},
		{OpExploreExport, http.MethodPost, "/explore/export", reflect.TypeOf(ExploreExportQuery{}), reflect.TypeOf(""), KindRawText},
		{OpHostsExport, http.MethodPost, "/hosts/export", reflect.TypeOf(HostRankings{}), reflect.TypeOf(""), KindRawText},
		{OpHostIngoing, http.MethodPost, "/webgraph/host/ingoing?host=", nil, reflect.TypeOf([]FullEdge{}), KindJSON},
		{OpHostOutgoing, http.MethodPost, "/webgraph/host/outgoing?host=", nil, reflect.TypeOf([]FullEdge{}), KindJSON},
		{OpPageIngoing, http.MethodPost, "/webgraph/page/ingoing?page=", nil, reflect.TypeOf([]FullEdge{}), KindJSON},
		{OpPageOutgoing, http.MethodPost, "/webgraph/page/outgoing?page=", nil, reflect.TypeOf([]FullEdge{}), KindJSON},
		{OpHostSimilar, http.MethodPost, "/webgraph/host/similar", reflect.TypeOf(SimilarHostsQuery{}), reflect.TypeOf([]ScoredHost{}), KindJSON},
		{OpHostKnows, http.MethodPost, "/webgraph/host/knows?host=", nil, reflect.TypeOf(KnowsHost{}), KindJSON},
	}

	if len(Endpoints) != len(tests) {
		t.Errorf("len(Endpoints) = %d, want %d", len(Endpoints), len(tests))
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			ep, ok := Endpoints[tt.op]
			if !ok {
				t.Fatalf("operation %q missing", tt.op)
			}
			if ep.Method != tt.method {
				t.Errorf("Method = %s, want %s", ep.Method, tt.method)
			}
			if ep.Template() != tt.template {
				t.Errorf("Template() = %q, want %q", ep.Template(), tt.template)
			}
			if ep.Request != tt.request {
				t.Errorf("Request = %v, want %v", ep.Request, tt.request)
			}
			if ep.Response != tt.response {
				t.Errorf("Response = %v, want %v", ep.Response, tt.response)
			}
			if ep.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", ep.Kind, tt.kind)
			}
		})
	}
}

func TestParseRegion(t *testing.T) {
	tests := []struct {
		in   string
		want Region
		ok   bool
	}{
		{"Denmark", RegionDenmark, true},
		{"denmark", RegionDenmark, true},
		{"DK", RegionDenmark, true},
		{"us", RegionUS, true},
		{"All", RegionAll, true},
		{" France ", RegionFrance, true},
		{"Atlantis", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseRegion(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRegion(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestHostRankingsNormalized(t *testing.T) {
	var h HostRankings
	n := h.Normalized()
	if n.Liked == nil || n.Disliked == nil || n.Blocked == nil {
		t.Errorf("Normalized() left nil sets: %+v", n)
	}
	if !n.IsEmpty() {
		t.Error("IsEmpty() = false for empty rankings")
	}

	h = HostRankings{Liked: []string{"a.com"}}
	n = h.Normalized()
	n.Liked[0] = "changed"
	if h.Liked[0] != "a.com" {
		t.Error("Normalized() must copy")
	}
}
