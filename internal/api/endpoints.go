// Package api binds each backend operation to its verb, path and payload
// shapes, and provides a typed client over the transport.
package api

import (
	"net/http"
	"reflect"
	"strings"
)

// Operation names a backend operation.
type Operation string

const (
	OpAutosuggest      Operation = "autosuggest"
	OpSearch           Operation = "search"
	OpSearchWidget     Operation = "search-widget"
	OpSearchSidebar    Operation = "search-sidebar"
	OpSearchSpellcheck Operation = "search-spellcheck"
	OpSummarize        Operation = "summarize"
	OpExploreExport    Operation = "explore-export"
	OpHostsExport      Operation = "hosts-export"
	OpHostIngoing      Operation = "host-ingoing"
	OpHostOutgoing     Operation = "host-outgoing"
	OpPageIngoing      Operation = "page-ingoing"
	OpPageOutgoing     Operation = "page-outgoing"
	OpHostSimilar      Operation = "host-similar"
	OpHostKnows        Operation = "host-knows"
)

// BodyKind is how a response body is consumed.
type BodyKind string

const (
	KindJSON        BodyKind = "json"
	KindRawText     BodyKind = "raw-text"
	KindEventStream BodyKind = "event-stream"
)

// Endpoint describes one operation. Request is nil when the call has no body.
type Endpoint struct {
	Method   string
	Path     string
	Params   []string
	Request  reflect.Type
	Response reflect.Type
	Kind     BodyKind
}

// Template renders the path with its query parameter names, e.g. "/autosuggest?q=".
func (e Endpoint) Template() string {
	if len(e.Params) == 0 {
		return e.Path
	}
	parts := make([]string, len(e.Params))
	for i, p := range e.Params {
		parts[i] = p + "="
	}
	return e.Path + "?" + strings.Join(parts, "&")
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Endpoints is the operation table. Paths are relative to the configured prefix.
var Endpoints = map[Operation]Endpoint{
	OpAutosuggest: {
		Method: http.MethodPost, Path: "/autosuggest", Params: []string{"q"},
		Response: typeOf[[]Suggestion](), Kind: KindJSON,
	},
	OpSearch: {
		Method: http.MethodPost, Path: "/search",
		Request: typeOf[SearchQuery](), Response: typeOf[SearchResult](), Kind: KindJSON,
	},
	OpSearchWidget: {
		Method: http.MethodPost, Path: "/search/widget",
		Request: typeOf[WidgetQuery](), Response: typeOf[*Widget](), Kind: KindJSON,
	},
	OpSearchSidebar: {
		Method: http.MethodPost, Path: "/search/sidebar",
		Request: typeOf[SidebarQuery](), Response: typeOf[*Sidebar](), Kind: KindJSON,
	},
	OpSearchSpellcheck: {
		Method: http.MethodPost, Path: "/search/spellcheck",
		Request: typeOf[SpellcheckQuery](), Response: typeOf[*SpellCorrection](), Kind: KindJSON,
	},
	OpSummarize: {
		Method: http.MethodGet, Path: "/summarize", Params: []string{"query", "url"},
		Response: typeOf[string](), Kind: KindEventStream,
	},
	OpExploreExport: {
		Method: http.MethodPost, Path: "/explore/export",
		Request: typeOf[ExploreExportQuery](), Response: typeOf[string](), Kind: KindRawText,
	},
	OpHostsExport: {
		Method: http.MethodPost, Path: "/hosts/export",
		Request: typeOf[HostRankings](), Response: typeOf[string](), Kind: KindRawText,
	},
	OpHostIngoing: {
		Method: http.MethodPost, Path: "/webgraph/host/ingoing", Params: []string{"host"},
		Response: typeOf[[]FullEdge](), Kind: KindJSON,
	},
	OpHostOutgoing: {
		Method: http.MethodPost, Path: "/webgraph/host/outgoing", Params: []string{"host"},
		Response: typeOf[[]FullEdge](), Kind: KindJSON,
	},
	OpPageIngoing: {
		Method: http.MethodPost, Path: "/webgraph/page/ingoing", Params: []string{"page"},
		Response: typeOf[[]FullEdge](), Kind: KindJSON,
	},
	OpPageOutgoing: {
		Method: http.MethodPost, Path: "/webgraph/page/outgoing", Params: []string{"page"},
		Response: typeOf[[]FullEdge](), Kind: KindJSON,
	},
	OpHostSimilar: {
		Method: http.MethodPost, Path: "/webgraph/host/similar",
		Request: typeOf[SimilarHostsQuery](), Response: typeOf[[]ScoredHost](), Kind: KindJSON,
	},
	OpHostKnows: {
		Method: http.MethodPost, Path: "/webgraph/host/knows", Params: []string{"host"},
		Response: typeOf[KnowsHost](), Kind: KindJSON,
	},
}
