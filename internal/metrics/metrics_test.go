package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSubCallCounters(t *testing.T) {
	before := testutil.ToFloat64(SubCalls.WithLabelValues("widget", "ok"))
	SubCalls.WithLabelValues("widget", "ok").Inc()
	after := testutil.ToFloat64(SubCalls.WithLabelValues("widget", "ok"))

	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}

func TestObserveSince(t *testing.T) {
	ObserveSince(SubCallDuration.WithLabelValues("spellcheck"), time.Now().Add(-10*time.Millisecond))

	if n := testutil.CollectAndCount(SubCallDuration, "stract_subcall_seconds"); n == 0 {
		t.Error("expected a subcall_seconds series")
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	TransportRequests.WithLabelValues("POST", "200").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "stract_transport_requests_total") {
		t.Errorf("metrics output missing transport counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics output missing go collector")
	}
}
