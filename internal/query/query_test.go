package query

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"stract/internal/api"
)

func TestNormalize_URLAndFormAgree(t *testing.T) {
	enc, err := EncodeHostRankings(api.HostRankings{Liked: []string{"go.dev"}, Blocked: []string{"spam.example"}})
	if err != nil {
		t.Fatal(err)
	}
	values := url.Values{
		"q":     {"  rust async  "},
		"p":     {"3"},
		"ss":    {"on"},
		"optic": {"https://example.com/blog.optic"},
		"gl":    {"de"},
		"sr":    {enc},
	}

	fromURL := Normalize(FromURL(values), nil)
	fromForm := Normalize(FromForm(values), nil)

	if !reflect.DeepEqual(fromURL.Spec, fromForm.Spec) {
		t.Fatalf("url spec %+v != form spec %+v", fromURL.Spec, fromForm.Spec)
	}

	spec := fromURL.Spec
	if spec.Query != "rust async" {
		t.Errorf("Query = %q", spec.Query)
	}
	if spec.Page != 3 || spec.ZeroBasedPage() != 2 {
		t.Errorf("Page = %d, ZeroBasedPage = %d", spec.Page, spec.ZeroBasedPage())
	}
	if !spec.SafeSearch {
		t.Error("SafeSearch = false")
	}
	if spec.OpticSource != "https://example.com/blog.optic" {
		t.Errorf("OpticSource = %q", spec.OpticSource)
	}
	if spec.Region == nil || *spec.Region != api.RegionGermany {
		t.Errorf("Region = %v", spec.Region)
	}
	if !reflect.DeepEqual(spec.HostRankings.Liked, []string{"go.dev"}) || len(spec.HostRankings.Disliked) != 0 {
		t.Errorf("HostRankings = %+v", spec.HostRankings)
	}
}

func TestNormalize_Defaults(t *testing.T) {
	out := Normalize(FromURL(url.Values{"q": {"golang"}}), nil)
	if !out.Proceed() {
		t.Fatal("expected to proceed")
	}

	spec := out.Spec
	if spec.Page != 1 || spec.ZeroBasedPage() != 0 {
		t.Errorf("Page = %d", spec.Page)
	}
	if spec.SafeSearch || spec.HasOptic() || spec.Region != nil {
		t.Errorf("unexpected options: %+v", spec)
	}
	if spec.HostRankings.Liked == nil || spec.HostRankings.Disliked == nil || spec.HostRankings.Blocked == nil {
		t.Error("rankings sets must be non-nil")
	}
}

func TestNormalize_LenientParsing(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
		page   int
		region *api.Region
	}{
		{"non-numeric page", url.Values{"q": {"x"}, "p": {"two"}}, 1, nil},
		{"zero page", url.Values{"q": {"x"}, "p": {"0"}}, 1, nil},
		{"negative page", url.Values{"q": {"x"}, "p": {"-4"}}, 1, nil},
		{"unknown region", url.Values{"q": {"x"}, "gl": {"atlantis"}}, 1, nil},
		{"region by name", url.Values{"q": {"x"}, "gl": {"france"}}, 1, regionPtr(api.RegionFrance)},
		{"garbage rankings", url.Values{"q": {"x"}, "sr": {"!!not-base64!!"}}, 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := Normalize(FromURL(tt.values), nil).Spec
			if spec.Page != tt.page {
				t.Errorf("Page = %d, want %d", spec.Page, tt.page)
			}
			if !reflect.DeepEqual(spec.Region, tt.region) {
				t.Errorf("Region = %v, want %v", spec.Region, tt.region)
			}
			if !spec.HostRankings.IsEmpty() {
				t.Errorf("HostRankings = %+v, want empty", spec.HostRankings)
			}
		})
	}
}

func TestNormalize_SafeSearchValues(t *testing.T) {
	tests := map[string]bool{
		"true": true,
		"TRUE": true,
		"1":    true,
		"on":   true,
		"yes":  false,
		"0":    false,
		"off":  false,
		"":     false,
	}

	for raw, want := range tests {
		t.Run(raw, func(t *testing.T) {
			spec := Normalize(FromForm(url.Values{"q": {"x"}, "ss": {raw}}), nil).Spec
			if spec.SafeSearch != want {
				t.Errorf("ss=%q: SafeSearch = %v, want %v", raw, spec.SafeSearch, want)
			}
		})
	}
}

func TestNormalize_EmptyQueryRedirects(t *testing.T) {
	for _, q := range []string{"", "   ", "\t\n"} {
		out := Normalize(FromURL(url.Values{"q": {q}, "p": {"2"}}), nil)
		if out.Proceed() {
			t.Errorf("q=%q should not proceed", q)
		}
		if out.Redirect != RedirectHome {
			t.Errorf("q=%q Redirect = %q, want %q", q, out.Redirect, RedirectHome)
		}
	}

	out := Normalize(FromURL(nil), nil)
	if out.Redirect != RedirectHome {
		t.Errorf("nil values Redirect = %q", out.Redirect)
	}
}

func TestNormalize_AdoptsFallback(t *testing.T) {
	fallback := &Spec{Query: "earlier", Page: 2}

	out := Normalize(FromURL(url.Values{}), fallback)
	if !out.Proceed() || !out.FromFallback {
		t.Fatalf("outcome = %+v, want fallback adoption", out)
	}
	if out.Spec.Query != "earlier" || out.Spec.Page != 2 {
		t.Errorf("Spec = %+v", out.Spec)
	}
	if out.Spec.HostRankings.Liked == nil {
		t.Error("adopted rankings must be non-nil")
	}

	out = Normalize(FromURL(url.Values{}), &Spec{Query: "  "})
	if out.Redirect != RedirectHome {
		t.Errorf("empty fallback should redirect, got %+v", out)
	}

	out = Normalize(FromURL(url.Values{"q": {"fresh"}}), fallback)
	if out.FromFallback || out.Spec.Query != "fresh" {
		t.Errorf("non-empty query must win over fallback, got %+v", out)
	}
}

func TestSpec_URLValuesRoundTrip(t *testing.T) {
	region := api.RegionSpain
	spec := Spec{
		Query:        "tapas",
		Page:         4,
		SafeSearch:   true,
		OpticSource:  "DiscardNonMatching;",
		Region:       &region,
		HostRankings: api.HostRankings{Liked: []string{"a.es"}, Disliked: []string{"b.es"}, Blocked: []string{}},
	}

	got := Parse(FromURL(spec.URLValues()))
	if !reflect.DeepEqual(got, spec) {
		t.Errorf("round trip = %+v, want %+v", got, spec)
	}

	v := Spec{Query: "plain", Page: 1, HostRankings: api.NewHostRankings()}.URLValues()
	for _, key := range []string{ParamPage, ParamSafeSearch, ParamOptic, ParamRegion, ParamRankings} {
		if v.Has(key) {
			t.Errorf("default spec should omit %q", key)
		}
	}
}

func TestSpec_WithOpticCopies(t *testing.T) {
	orig := Spec{Query: "q", Page: 1, OpticSource: "https://x/optic", HostRankings: api.NewHostRankings()}
	resolved := orig.WithOptic("Rule { };")

	if orig.OpticSource != "https://x/optic" {
		t.Error("WithOptic mutated the original")
	}
	if resolved.OpticSource != "Rule { };" {
		t.Errorf("OpticSource = %q", resolved.OpticSource)
	}
}

func TestFromRequest(t *testing.T) {
	get := httptest.NewRequest(http.MethodGet, "/search?q=hello&p=2", nil)
	src, err := FromRequest(get)
	if err != nil {
		t.Fatal(err)
	}
	if src.Origin != OriginURL {
		t.Errorf("Origin = %q", src.Origin)
	}

	post := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader("q=hello&p=2"))
	post.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	formSrc, err := FromRequest(post)
	if err != nil {
		t.Fatal(err)
	}
	if formSrc.Origin != OriginForm {
		t.Errorf("Origin = %q", formSrc.Origin)
	}

	if !reflect.DeepEqual(Parse(src), Parse(formSrc)) {
		t.Errorf("GET and POST specs differ: %+v vs %+v", Parse(src), Parse(formSrc))
	}
}

func TestHostRankingsEncoding(t *testing.T) {
	in := api.HostRankings{Liked: []string{"go.dev", "pkg.go.dev"}, Disliked: []string{"ads.example"}}

	enc, err := EncodeHostRankings(in)
	if err != nil {
		t.Fatal(err)
	}
	if strings.ContainsAny(enc, "+/=") {
		t.Errorf("encoding %q is not url-safe", enc)
	}

	out, err := DecodeHostRankings(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out, in.Normalized()) {
		t.Errorf("decoded = %+v, want %+v", out, in.Normalized())
	}

	if _, err := DecodeHostRankings("AAAA"); err == nil {
		t.Error("expected error for non-deflate payload")
	}
}

func regionPtr(r api.Region) *api.Region { return &r }
