package orchestrator

import (
	"fmt"

	"stract/internal/api"
	"stract/internal/query"
)

// Variant discriminates Aggregate.
type Variant string

const (
	VariantWebsites Variant = "websites"
	VariantBang     Variant = "bang"
)

// Aggregate is the merged result of a search. A websites aggregate carries the
// ranked pages plus whatever enrichment succeeded; a bang aggregate carries
// only the redirect.
type Aggregate struct {
	Kind Variant
	Spec query.Spec

	Websites        *api.WebsitesResult
	Widget          *api.Widget
	Sidebar         *api.Sidebar
	Discussions     []api.DisplayedWebpage
	SpellCorrection *api.SpellCorrection
	// SearchDurationMs is the primary call's round trip. Nil for bangs.
	SearchDurationMs *int64

	Bang *api.BangHit

	// Degraded lists enrichment calls that failed and were left out.
	Degraded []Degradation
}

// Degradation records an enrichment call dropped from the aggregate.
type Degradation struct {
	Kind SubCallKind
	Err  error
}

// IsBang reports whether the search resolved to a redirect.
func (a *Aggregate) IsBang() bool {
	return a.Kind == VariantBang
}

// RedirectTo returns the bang target, or "" for a websites aggregate.
func (a *Aggregate) RedirectTo() string {
	if a.Bang == nil {
		return ""
	}
	return a.Bang.RedirectTo
}

// SubCallError wraps the failure of one sub-call.
type SubCallError struct {
	Kind SubCallKind
	Err  error
}

func (e *SubCallError) Error() string {
	return fmt.Sprintf("%s sub-call failed: %v", e.Kind, e.Err)
}

func (e *SubCallError) Unwrap() error {
	return e.Err
}
