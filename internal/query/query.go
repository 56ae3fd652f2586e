// Package query turns raw request input into a canonical search spec and
// decides whether the request can proceed.
package query

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"stract/internal/api"
)

// Parameter names shared by URL and form input.
const (
	ParamQuery      = "q"
	ParamPage       = "p"
	ParamSafeSearch = "ss"
	ParamOptic      = "optic"
	ParamRegion     = "gl"
	ParamRankings   = "sr"
)

// Origin records where a Source came from. It never affects extraction.
type Origin string

const (
	OriginURL  Origin = "url"
	OriginForm Origin = "form"
)

// Source is raw key/value input awaiting normalization.
type Source struct {
	Origin Origin
	values url.Values
}

// FromURL wraps URL query parameters.
func FromURL(v url.Values) Source {
	return Source{Origin: OriginURL, values: v}
}

// FromForm wraps submitted form fields.
func FromForm(v url.Values) Source {
	return Source{Origin: OriginForm, values: v}
}

// FromRequest reads the URL query of a GET or the form body of a POST.
func FromRequest(r *http.Request) (Source, error) {
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			return Source{}, err
		}
		return FromForm(r.PostForm), nil
	}
	return FromURL(r.URL.Query()), nil
}

func (s Source) get(key string) string {
	if s.values == nil {
		return ""
	}
	return strings.TrimSpace(s.values.Get(key))
}

// Spec is a normalized search request. Page is 1-based. HostRankings sets are
// never nil. A Spec is not modified after construction; With* methods return copies.
type Spec struct {
	Query        string
	Page         int
	SafeSearch   bool
	OpticSource  string
	Region       *api.Region
	HostRankings api.HostRankings
}

// IsEmpty reports whether the query text is blank.
func (s Spec) IsEmpty() bool {
	return strings.TrimSpace(s.Query) == ""
}

// HasOptic reports whether an optic source is attached.
func (s Spec) HasOptic() bool {
	return s.OpticSource != ""
}

// ZeroBasedPage returns the page index used on the wire.
func (s Spec) ZeroBasedPage() int {
	if s.Page < 1 {
		return 0
	}
	return s.Page - 1
}

// WithOptic returns a copy with the optic source replaced.
func (s Spec) WithOptic(optic string) Spec {
	s.HostRankings = s.HostRankings.Normalized()
	s.OpticSource = optic
	return s
}

// URLValues encodes the spec as canonical query parameters.
func (s Spec) URLValues() url.Values {
	v := url.Values{}
	v.Set(ParamQuery, s.Query)
	if s.Page > 1 {
		v.Set(ParamPage, strconv.Itoa(s.Page))
	}
	if s.SafeSearch {
		v.Set(ParamSafeSearch, "true")
	}
	if s.OpticSource != "" {
		v.Set(ParamOptic, s.OpticSource)
	}
	if s.Region != nil {
		v.Set(ParamRegion, string(*s.Region))
	}
	if !s.HostRankings.IsEmpty() {
		if enc, err := EncodeHostRankings(s.HostRankings); err == nil {
			v.Set(ParamRankings, enc)
		}
	}
	return v
}

// Redirect is a control outcome telling the caller to navigate elsewhere.
type Redirect string

// RedirectHome sends the user back to the start page.
const RedirectHome Redirect = "/"

// Outcome is the result of normalization: either a spec to search with, or a redirect.
type Outcome struct {
	Spec         Spec
	Redirect     Redirect
	FromFallback bool
}

// Proceed reports whether sub-calls should be issued.
func (o Outcome) Proceed() bool {
	return o.Redirect == ""
}

// Parse extracts a spec from src without judging it.
func Parse(src Source) Spec {
	spec := Spec{
		Query:        src.get(ParamQuery),
		Page:         parsePage(src.get(ParamPage)),
		SafeSearch:   parseBool(src.get(ParamSafeSearch)),
		OpticSource:  src.get(ParamOptic),
		HostRankings: api.NewHostRankings(),
	}
	if r, ok := api.ParseRegion(src.get(ParamRegion)); ok {
		spec.Region = &r
	}
	if sr := src.get(ParamRankings); sr != "" {
		if h, err := DecodeHostRankings(sr); err == nil {
			spec.HostRankings = h
		}
	}
	return spec
}

// Normalize parses src. An empty query adopts a non-empty fallback (an earlier
// form submission) or else yields RedirectHome.
func Normalize(src Source, fallback *Spec) Outcome {
	spec := Parse(src)
	if !spec.IsEmpty() {
		return Outcome{Spec: spec}
	}

	if fallback != nil && !fallback.IsEmpty() {
		fb := *fallback
		fb.HostRankings = fb.HostRankings.Normalized()
		if fb.Page < 1 {
			fb.Page = 1
		}
		return Outcome{Spec: fb, FromFallback: true}
	}
	return Outcome{Redirect: RedirectHome}
}

func parsePage(s string) int {
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 {
		return 1
	}
	return p
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "on":
		return true
	default:
		return false
	}
}
