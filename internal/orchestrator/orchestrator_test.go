package orchestrator

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"stract/internal/api"
	"stract/internal/config"
	"stract/internal/errors"
	"stract/internal/metrics"
	"stract/internal/query"
	"stract/internal/transport"
)

const testDiscussionsOptic = "DiscardNonMatching; Rule { Matches { Site(\"|news.ycombinator.com|\") } };"

const (
	websitesJSON      = `{"type":"websites","webpages":[{"title":"The Go Programming Language","url":"https://go.dev/","site":"go.dev","domain":"go.dev","prettyUrl":"go.dev","snippet":{"type":"normal"},"likelyHasAds":false,"likelyHasPaywall":false}],"numHits":1,"searchDurationMs":4,"hasMoreResults":true}`
	discussionsJSON   = `{"type":"websites","webpages":[{"title":"Ask HN: Why Go?","url":"https://news.ycombinator.com/item?id=1","site":"news.ycombinator.com","domain":"ycombinator.com","prettyUrl":"news.ycombinator.com","snippet":{"type":"normal"},"likelyHasAds":false,"likelyHasPaywall":false}],"searchDurationMs":2,"hasMoreResults":false}`
	emptyWebsitesJSON = `{"type":"websites","webpages":[],"searchDurationMs":1,"hasMoreResults":false}`
	bangJSON          = `{"type":"bang","bang":{"t":"w","u":"https://en.wikipedia.org/wiki/{{{s}}}"},"redirectTo":"https://en.wikipedia.org/wiki/golang"}`
	widgetJSON        = `{"type":"calculator","input":"1+1","result":"2"}`
	sidebarJSON       = `{"type":"entity","title":"Go (programming language)"}`
	spellJSON         = `{"raw":"golang","highlighted":"<b>golang</b>"}`
)

// backend is a fake search API. Requests are classified by sub-call kind;
// primary and discussions searches are told apart by the optic in the body.
type backend struct {
	mu       sync.Mutex
	calls    map[SubCallKind]int
	bodies   map[SubCallKind]string
	replies  map[SubCallKind]string
	failures map[SubCallKind]int
	delays   map[SubCallKind]time.Duration
}

func newBackend() *backend {
	return &backend{
		calls:  map[SubCallKind]int{},
		bodies: map[SubCallKind]string{},
		replies: map[SubCallKind]string{
			KindPrimary:     websitesJSON,
			KindWidget:      widgetJSON,
			KindSidebar:     sidebarJSON,
			KindDiscussions: discussionsJSON,
			KindSpellcheck:  spellJSON,
		},
		failures: map[SubCallKind]int{},
		delays:   map[SubCallKind]time.Duration{},
	}
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	var kind SubCallKind
	switch strings.TrimPrefix(r.URL.Path, "/beta/api") {
	case "/search":
		kind = KindPrimary
		if strings.Contains(string(body), "news.ycombinator.com") {
			kind = KindDiscussions
		}
	case "/search/widget":
		kind = KindWidget
	case "/search/sidebar":
		kind = KindSidebar
	case "/search/spellcheck":
		kind = KindSpellcheck
	default:
		http.Error(w, "no route", http.StatusNotFound)
		return
	}

	b.mu.Lock()
	b.calls[kind]++
	b.bodies[kind] = string(body)
	reply, status, delay := b.replies[kind], b.failures[kind], b.delays[kind]
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		http.Error(w, "upstream exploded", status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, reply)
}

func (b *backend) reply(kind SubCallKind, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies[kind] = body
}

func (b *backend) fail(kind SubCallKind, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[kind] = status
}

func (b *backend) delay(kind SubCallKind, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delays[kind] = d
}

func (b *backend) total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

func (b *backend) count(kind SubCallKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[kind]
}

func (b *backend) body(t *testing.T, kind SubCallKind) api.SearchQuery {
	t.Helper()
	b.mu.Lock()
	raw := b.bodies[kind]
	b.mu.Unlock()

	var q api.SearchQuery
	if err := transport.Unmarshal([]byte(raw), &q); err != nil {
		t.Fatalf("decode %s body %q: %v", kind, raw, err)
	}
	return q
}

func newTestOrchestrator(t *testing.T, b *backend, mutate func(*Options)) (*Orchestrator, *transport.Transport) {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	tr, err := transport.New(transport.Options{BaseURL: srv.URL + "/beta/api"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	opts := Options{DiscussionsOptic: testDiscussionsOptic, DiscussionsLimit: 10}
	if mutate != nil {
		mutate(&opts)
	}
	return New(api.NewClient(tr, nil), opts, nil), tr
}

func spec(q string, page int) query.Spec {
	return query.Spec{Query: q, Page: page, HostRankings: api.NewHostRankings()}
}

func TestPlan(t *testing.T) {
	optic := spec("golang", 1)
	optic.OpticSource = "DiscardNonMatching;"

	tests := []struct {
		name string
		spec query.Spec
		want []SubCallKind
	}{
		{"first page", spec("golang", 1), []SubCallKind{KindPrimary, KindWidget, KindSidebar, KindDiscussions, KindSpellcheck}},
		{"later page", spec("golang", 2), []SubCallKind{KindPrimary, KindSpellcheck}},
		{"unnormalized page zero", spec("golang", 0), []SubCallKind{KindPrimary, KindSpellcheck}},
		{"first page with optic", optic, []SubCallKind{KindPrimary, KindWidget, KindSidebar, KindSpellcheck}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Plan(tt.spec); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Plan() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolve_IssuesPlannedSubCalls(t *testing.T) {
	withOptic := spec("golang", 1)
	withOptic.OpticSource = "Rule { Matches { Site(\"go.dev\") }, Action(Boost(10)) };"

	tests := []struct {
		name  string
		spec  query.Spec
		total int
		none  []SubCallKind
	}{
		{"page one", spec("golang", 1), 5, nil},
		{"page three", spec("golang", 3), 2, []SubCallKind{KindWidget, KindSidebar, KindDiscussions}},
		{"page one with optic", withOptic, 4, []SubCallKind{KindDiscussions}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend()
			o, _ := newTestOrchestrator(t, b, nil)

			if _, err := o.Resolve(context.Background(), tt.spec); err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got := b.total(); got != tt.total {
				t.Errorf("issued %d sub-calls, want %d", got, tt.total)
			}
			if b.count(KindPrimary) != 1 || b.count(KindSpellcheck) != 1 {
				t.Errorf("primary=%d spellcheck=%d, want 1 each", b.count(KindPrimary), b.count(KindSpellcheck))
			}
			for _, k := range tt.none {
				if n := b.count(k); n != 0 {
					t.Errorf("%s issued %d times, want 0", k, n)
				}
			}
		})
	}
}

func TestResolve_MergesWebsites(t *testing.T) {
	b := newBackend()
	o, _ := newTestOrchestrator(t, b, nil)

	agg, err := o.Resolve(context.Background(), spec("golang", 1))
	if err != nil {
		t.Fatal(err)
	}

	if agg.Kind != VariantWebsites || agg.IsBang() || agg.RedirectTo() != "" {
		t.Fatalf("Kind = %v", agg.Kind)
	}
	if len(agg.Websites.Webpages) != 1 || agg.Websites.Webpages[0].URL != "https://go.dev/" {
		t.Errorf("Webpages = %+v", agg.Websites.Webpages)
	}
	if agg.Widget == nil || agg.Widget.Type != "calculator" {
		t.Errorf("Widget = %+v", agg.Widget)
	}
	if agg.Sidebar == nil || agg.Sidebar.Title() != "Go (programming language)" {
		t.Errorf("Sidebar = %+v", agg.Sidebar)
	}
	if len(agg.Discussions) != 1 || agg.Discussions[0].Site != "news.ycombinator.com" {
		t.Errorf("Discussions = %+v", agg.Discussions)
	}
	if agg.SpellCorrection == nil || agg.SpellCorrection.Raw != "golang" {
		t.Errorf("SpellCorrection = %+v", agg.SpellCorrection)
	}
	if len(agg.Degraded) != 0 {
		t.Errorf("Degraded = %+v", agg.Degraded)
	}
}

func TestResolve_SearchDurationOnlyForWebsites(t *testing.T) {
	b := newBackend()
	b.delay(KindPrimary, 20*time.Millisecond)
	o, _ := newTestOrchestrator(t, b, nil)

	agg, err := o.Resolve(context.Background(), spec("golang", 2))
	if err != nil {
		t.Fatal(err)
	}
	if agg.SearchDurationMs == nil {
		t.Fatal("SearchDurationMs missing on websites result")
	}
	if *agg.SearchDurationMs < 20 {
		t.Errorf("SearchDurationMs = %d, want >= 20", *agg.SearchDurationMs)
	}

	b.reply(KindPrimary, bangJSON)
	agg, err = o.Resolve(context.Background(), spec("!w golang", 2))
	if err != nil {
		t.Fatal(err)
	}
	if agg.SearchDurationMs != nil {
		t.Errorf("SearchDurationMs = %d on bang result, want nil", *agg.SearchDurationMs)
	}
}

func TestResolve_BangShortCircuits(t *testing.T) {
	for _, policy := range []string{config.PolicyDegrade, config.PolicyJoint} {
		t.Run(policy, func(t *testing.T) {
			b := newBackend()
			b.reply(KindPrimary, bangJSON)
			b.fail(KindWidget, http.StatusInternalServerError)
			for _, k := range []SubCallKind{KindWidget, KindSidebar, KindDiscussions, KindSpellcheck} {
				b.delay(k, 200*time.Millisecond)
			}
			o, _ := newTestOrchestrator(t, b, func(opts *Options) { opts.Policy = policy })

			start := time.Now()
			agg, err := o.Resolve(context.Background(), spec("!w golang", 1))
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if !agg.IsBang() || agg.RedirectTo() != "https://en.wikipedia.org/wiki/golang" {
				t.Errorf("aggregate = %+v", agg)
			}
			if agg.Websites != nil || agg.Widget != nil || agg.Sidebar != nil || agg.Discussions != nil || agg.SpellCorrection != nil {
				t.Errorf("bang aggregate carries enrichment: %+v", agg)
			}
			if len(agg.Degraded) != 0 {
				t.Errorf("Degraded = %+v", agg.Degraded)
			}
			if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
				t.Errorf("enrichment calls were not cancelled after bang (took %v)", elapsed)
			}
		})
	}
}

func TestResolve_BangSurvivesEarlyEnrichmentFailure(t *testing.T) {
	for _, policy := range []string{config.PolicyDegrade, config.PolicyJoint} {
		t.Run(policy, func(t *testing.T) {
			b := newBackend()
			b.reply(KindPrimary, bangJSON)
			b.delay(KindPrimary, 100*time.Millisecond)
			b.fail(KindSpellcheck, http.StatusInternalServerError)
			o, _ := newTestOrchestrator(t, b, func(opts *Options) { opts.Policy = policy })

			agg, err := o.Resolve(context.Background(), spec("!w golang", 2))
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if !agg.IsBang() || agg.RedirectTo() != "https://en.wikipedia.org/wiki/golang" {
				t.Errorf("aggregate = %+v", agg)
			}
			if len(agg.Degraded) != 0 {
				t.Errorf("Degraded = %+v", agg.Degraded)
			}
		})
	}
}

func TestResolve_DegradePolicyDropsFailedEnrichment(t *testing.T) {
	b := newBackend()
	b.fail(KindSpellcheck, http.StatusInternalServerError)
	o, _ := newTestOrchestrator(t, b, func(opts *Options) { opts.Policy = config.PolicyDegrade })

	errorsBefore := testutil.ToFloat64(metrics.SubCalls.WithLabelValues(string(KindSpellcheck), "error"))

	agg, err := o.Resolve(context.Background(), spec("golang", 1))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if agg.SpellCorrection != nil {
		t.Errorf("SpellCorrection = %+v, want nil", agg.SpellCorrection)
	}
	if agg.Widget == nil || agg.Sidebar == nil || len(agg.Discussions) == 0 {
		t.Error("successful enrichment should still be attached")
	}
	if agg.SearchDurationMs == nil {
		t.Error("SearchDurationMs missing")
	}

	if len(agg.Degraded) != 1 || agg.Degraded[0].Kind != KindSpellcheck {
		t.Fatalf("Degraded = %+v", agg.Degraded)
	}
	var se *errors.StatusError
	if !stderrors.As(agg.Degraded[0].Err, &se) || se.StatusCode != http.StatusInternalServerError {
		t.Errorf("degradation error = %v", agg.Degraded[0].Err)
	}
	if !strings.Contains(se.Body, "upstream exploded") {
		t.Errorf("status body = %q", se.Body)
	}

	errorsAfter := testutil.ToFloat64(metrics.SubCalls.WithLabelValues(string(KindSpellcheck), "error"))
	if errorsAfter-errorsBefore != 1 {
		t.Errorf("spellcheck error counter moved by %v, want 1", errorsAfter-errorsBefore)
	}
}

func TestResolve_JointPolicyFailsOnAnyEnrichment(t *testing.T) {
	b := newBackend()
	b.fail(KindSpellcheck, http.StatusInternalServerError)
	o, _ := newTestOrchestrator(t, b, func(opts *Options) { opts.Policy = config.PolicyJoint })

	agg, err := o.Resolve(context.Background(), spec("golang", 1))
	if err == nil {
		t.Fatalf("Resolve() = %+v, want error", agg)
	}

	var sce *SubCallError
	if !stderrors.As(err, &sce) || sce.Kind != KindSpellcheck {
		t.Fatalf("error = %v, want spellcheck SubCallError", err)
	}
	if errors.CodeOf(err) != errors.StatusFailed {
		t.Errorf("CodeOf() = %s", errors.CodeOf(err))
	}
}

func TestResolve_PrimaryFailureFailsEitherPolicy(t *testing.T) {
	for _, policy := range []string{config.PolicyDegrade, config.PolicyJoint} {
		t.Run(policy, func(t *testing.T) {
			b := newBackend()
			b.fail(KindPrimary, http.StatusServiceUnavailable)
			o, _ := newTestOrchestrator(t, b, func(opts *Options) { opts.Policy = policy })

			_, err := o.Resolve(context.Background(), spec("golang", 2))
			var sce *SubCallError
			if !stderrors.As(err, &sce) || sce.Kind != KindPrimary {
				t.Fatalf("error = %v, want primary SubCallError", err)
			}
			var se *errors.StatusError
			if !stderrors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
				t.Errorf("error = %v, want status 503", err)
			}
		})
	}
}

func TestResolve_AbsentEnrichmentIsNotDegraded(t *testing.T) {
	b := newBackend()
	b.reply(KindWidget, "null")
	b.reply(KindSidebar, "null")
	b.reply(KindSpellcheck, "null")
	b.reply(KindDiscussions, emptyWebsitesJSON)
	o, _ := newTestOrchestrator(t, b, nil)

	agg, err := o.Resolve(context.Background(), spec("golang", 1))
	if err != nil {
		t.Fatal(err)
	}
	if agg.Widget != nil || agg.Sidebar != nil || agg.SpellCorrection != nil || agg.Discussions != nil {
		t.Errorf("absent enrichment attached: %+v", agg)
	}
	if len(agg.Degraded) != 0 {
		t.Errorf("Degraded = %+v", agg.Degraded)
	}
}

func TestResolve_PassesSpecThrough(t *testing.T) {
	b := newBackend()
	o, _ := newTestOrchestrator(t, b, func(opts *Options) { opts.NumResults = 30 })

	region := api.RegionDenmark
	s := query.Spec{
		Query:        "smørrebrød",
		Page:         1,
		SafeSearch:   true,
		Region:       &region,
		HostRankings: api.HostRankings{Liked: []string{"dr.dk"}, Blocked: []string{"spam.example"}},
	}
	if _, err := o.Resolve(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	primary := b.body(t, KindPrimary)
	if primary.Query != "smørrebrød" || primary.Page != 0 || primary.NumResults != 30 {
		t.Errorf("primary = %+v", primary)
	}
	if !primary.SafeSearch || primary.SelectedRegion == nil || *primary.SelectedRegion != api.RegionDenmark {
		t.Errorf("primary options = %+v", primary)
	}
	if primary.HostRankings == nil || !reflect.DeepEqual(primary.HostRankings.Liked, []string{"dr.dk"}) ||
		primary.HostRankings.Disliked == nil {
		t.Errorf("primary rankings = %+v", primary.HostRankings)
	}
	if primary.Optic != "" {
		t.Errorf("primary optic = %q, want none", primary.Optic)
	}

	disc := b.body(t, KindDiscussions)
	if disc.Optic != testDiscussionsOptic || disc.NumResults != 10 || disc.Page != 0 {
		t.Errorf("discussions = %+v", disc)
	}
	if disc.SelectedRegion == nil || *disc.SelectedRegion != api.RegionDenmark {
		t.Errorf("discussions region = %v", disc.SelectedRegion)
	}
}

func TestResolve_ZeroBasedPageAndInlineOptic(t *testing.T) {
	b := newBackend()
	o, _ := newTestOrchestrator(t, b, nil)

	s := spec("golang", 4)
	s.OpticSource = "DiscardNonMatching; Rule { Matches { Site(\"go.dev\") } };"
	if _, err := o.Resolve(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	primary := b.body(t, KindPrimary)
	if primary.Page != 3 {
		t.Errorf("page = %d, want 3", primary.Page)
	}
	if primary.Optic != s.OpticSource {
		t.Errorf("optic = %q, want verbatim %q", primary.Optic, s.OpticSource)
	}
}

func TestResolve_EmptyQueryIssuesNothing(t *testing.T) {
	b := newBackend()
	o, _ := newTestOrchestrator(t, b, nil)

	out := query.Normalize(query.FromURL(url.Values{"q": {"   "}}), nil)
	if out.Proceed() {
		t.Fatal("empty query should not proceed")
	}

	_, err := o.Resolve(context.Background(), out.Spec)
	if errors.CodeOf(err) != errors.QueryEmpty {
		t.Errorf("CodeOf() = %s, want %s", errors.CodeOf(err), errors.QueryEmpty)
	}
	if n := b.total(); n != 0 {
		t.Errorf("issued %d sub-calls for an empty query", n)
	}
}

func TestResolve_FallbackSpecDrivesSubCalls(t *testing.T) {
	b := newBackend()
	o, _ := newTestOrchestrator(t, b, nil)

	fallback := spec("from the form", 2)
	out := query.Normalize(query.FromURL(url.Values{"q": {""}}), &fallback)
	if !out.Proceed() {
		t.Fatal("fallback should proceed")
	}

	if _, err := o.Resolve(context.Background(), out.Spec); err != nil {
		t.Fatal(err)
	}
	if b.total() != 2 {
		t.Errorf("issued %d sub-calls, want 2", b.total())
	}
	if q := b.body(t, KindPrimary); q.Query != "from the form" || q.Page != 1 {
		t.Errorf("primary = %+v", q)
	}
}

func TestResolve_DereferencesOpticURL(t *testing.T) {
	const program = "DiscardNonMatching; Rule { Matches { Site(\"|go.dev|\") } };"
	optics := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/optics/go.optic" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, program)
	}))
	defer optics.Close()

	b := newBackend()
	o, tr := newTestOrchestrator(t, b, nil)
	o.opts.Resolver = NewHTTPOpticResolver(tr)

	s := spec("golang", 1)
	s.OpticSource = optics.URL + "/optics/go.optic"
	agg, err := o.Resolve(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}

	if got := b.body(t, KindPrimary).Optic; got != program {
		t.Errorf("primary optic = %q, want fetched program", got)
	}
	if agg.Spec.OpticSource != program {
		t.Errorf("aggregate spec optic = %q", agg.Spec.OpticSource)
	}
	if s.OpticSource == program {
		t.Error("caller's spec was mutated")
	}
	if b.count(KindDiscussions) != 0 {
		t.Error("discussions must stay suppressed for a resolved optic")
	}

	s.OpticSource = optics.URL + "/optics/missing.optic"
	before := b.total()
	_, err = o.Resolve(context.Background(), s)
	if errors.CodeOf(err) != errors.OpticUnavailable {
		t.Errorf("CodeOf() = %s, want %s", errors.CodeOf(err), errors.OpticUnavailable)
	}
	if b.total() != before {
		t.Error("sub-calls issued despite optic failure")
	}
}

func TestIsOpticURL(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://example.com/blog.optic", true},
		{"http://localhost:8080/x", true},
		{"  https://example.com/a  ", true},
		{"DiscardNonMatching;", false},
		{"Rule { Matches { Site(\"https://a.com\") } };", false},
		{"ftp://example.com/x", false},
		{"example.com/x", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsOpticURL(tt.in); got != tt.want {
			t.Errorf("IsOpticURL(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Search
	cfg.ResolveOpticURLs = false
	cfg.FailurePolicy = "bogus"

	o := FromConfig(nil, cfg, NewHTTPOpticResolver(nil), nil, nil)
	if o.opts.Resolver != nil {
		t.Error("resolver should be dropped when optic URL resolution is off")
	}
	if o.opts.Policy != config.PolicyDegrade {
		t.Errorf("Policy = %q, want degrade fallback", o.opts.Policy)
	}
	if o.opts.NumResults != cfg.NumResults || o.opts.DiscussionsLimit != cfg.DiscussionsLimit {
		t.Errorf("opts = %+v", o.opts)
	}
}
