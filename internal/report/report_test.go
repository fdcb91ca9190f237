package report

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/common/expfmt"
	"gopkg.in/yaml.v3"

	"github.com/duplexmedia/pagespeed/pkg/pagespeed"
)

// v5Response is a trimmed PageSpeed v5 response.
const v5Response = `{
  "loadingExperience": {"overall_category": "AVERAGE"},
  "lighthouseResult": {
    "categories": {"performance": {"score": 0.87}},
    "audits": {
      "first-contentful-paint":   {"numericValue": 1200.5},
      "largest-contentful-paint": {"numericValue": 2500},
      "cumulative-layout-shift":  {"numericValue": 0.02}
    }
  }
}`

// v2Response is a trimmed PageSpeed v2 response.
const v2Response = `{"ruleGroups": {"SPEED": {"score": 42}}}`

func decode(t *testing.T, body string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return v
}

// newFixtureClient returns a Client whose server answers with bodies[url],
// or 503 for URLs without a body.
func newFixtureClient(t *testing.T, bodies map[string]string) *pagespeed.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := bodies[r.URL.Query().Get("url")]
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c, err := pagespeed.New(pagespeed.Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("pagespeed.New() error: %v", err)
	}
	return c
}

// fakeResult runs one batch against a fixture server.
func fakeResult(t *testing.T, bodies map[string]string, urls []string, s pagespeed.Strategy) *pagespeed.BatchResult {
	t.Helper()
	c := newFixtureClient(t, bodies)
	res, err := c.Query(context.Background(), urls, "en_US", s)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	return res
}

func TestExtractScore(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   float64
		wantOK bool
	}{
		{"v5", v5Response, 87, true},
		{"v2", v2Response, 42, true},
		{"no score", `{"id": "https://example.com"}`, 0, false},
		{"score wrong type", `{"ruleGroups": {"SPEED": {"score": "high"}}}`, 0, false},
		{"clamped", `{"lighthouseResult": {"categories": {"performance": {"score": 1.5}}}}`, 100, true},
		{"not an object", `[1,2,3]`, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractScore(decode(t, tc.body))
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("score = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRatingFromScore(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{100, RatingGood},
		{90, RatingGood},
		{89.9, RatingNeedsImprovement},
		{50, RatingNeedsImprovement},
		{49.9, RatingPoor},
		{0, RatingPoor},
	}
	for _, tc := range tests {
		if got := ratingFromScore(tc.score); got != tc.want {
			t.Errorf("ratingFromScore(%v) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	res := fakeResult(t, map[string]string{
		"http://v5.test": v5Response,
		"http://v2.test": v2Response,
	}, []string{"http://v5.test", "http://v2.test", "http://down.test"}, pagespeed.StrategyDesktop)

	sums := Summarize(res)
	if len(sums) != 3 {
		t.Fatalf("len(Summarize) = %d, want 3", len(sums))
	}

	v5 := sums[0]
	if v5.URL != "http://v5.test" || v5.Strategy != "desktop" {
		t.Errorf("sums[0] = %s/%s", v5.URL, v5.Strategy)
	}
	if v5.Score == nil || math.Abs(*v5.Score-87) > 1e-9 {
		t.Errorf("v5 score = %v, want 87", v5.Score)
	}
	if v5.Rating != RatingNeedsImprovement {
		t.Errorf("v5 rating = %q", v5.Rating)
	}
	if v5.FieldCategory != "AVERAGE" {
		t.Errorf("v5 field category = %q", v5.FieldCategory)
	}
	if got := v5.Audits["largest-contentful-paint"]; got != 2500 {
		t.Errorf("v5 LCP = %v, want 2500", got)
	}
	if _, ok := v5.Audits["speed-index"]; ok {
		t.Error("v5 audits should not contain absent speed-index")
	}

	if v2 := sums[1]; v2.Rating != RatingPoor || v2.Audits != nil {
		t.Errorf("v2 summary = %+v", v2)
	}

	down := sums[2]
	if down.Success || down.Error == "" || down.Rating != RatingUnknown || down.AvailabilityPct != 0 {
		t.Errorf("failed summary = %+v", down)
	}
}

func TestTracker_Availability(t *testing.T) {
	tr := NewTracker(4)
	ok := fakeResult(t, map[string]string{"http://a.test": v2Response}, []string{"http://a.test"}, pagespeed.StrategyMobile)
	bad := fakeResult(t, nil, []string{"http://a.test"}, pagespeed.StrategyMobile)

	steps := []struct {
		res  *pagespeed.BatchResult
		want float64
	}{
		{ok, 100},
		{bad, 50},
		{bad, 100.0 / 3},
		{ok, 50},
		{ok, 50},  // window of 4: ok,bad,bad,ok → first ok evicted: bad,bad,ok,ok
		{ok, 75},  // bad,ok,ok,ok
		{ok, 100}, // ok,ok,ok,ok
	}
	for i, st := range steps {
		sums := tr.Observe(st.res)
		if len(sums) != 1 {
			t.Fatalf("step %d: %d summaries", i, len(sums))
		}
		if got := sums[0].AvailabilityPct; math.Abs(got-st.want) > 1e-9 {
			t.Errorf("step %d: availability = %.2f, want %.2f", i, got, st.want)
		}
	}
}

func TestTracker_Forget(t *testing.T) {
	tr := NewTracker(0)
	res := fakeResult(t, map[string]string{"http://a.test": v2Response, "http://b.test": v2Response},
		[]string{"http://a.test", "http://b.test"}, pagespeed.StrategyBoth)
	tr.Observe(res)

	if n := tr.Forget([]string{"http://a.test"}); n != 2 {
		t.Errorf("Forget removed %d pairs, want 2", n)
	}
	if n := tr.Forget([]string{"http://a.test"}); n != 0 {
		t.Errorf("second Forget removed %d pairs, want 0", n)
	}
}

func TestWritePrometheus_ParsesBack(t *testing.T) {
	res := fakeResult(t, map[string]string{"http://v5.test": v5Response}, []string{"http://v5.test", "http://down.test"}, pagespeed.StrategyBoth)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	if err := WritePrometheus(&buf, Summarize(res), now); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("output is not valid exposition text: %v", err)
	}

	if got := len(mfs[metricSuccess].GetMetric()); got != 4 {
		t.Errorf("%s samples = %d, want 4", metricSuccess, got)
	}
	// Only the two v5.test pairs carry a score.
	if got := len(mfs[metricScore].GetMetric()); got != 2 {
		t.Errorf("%s samples = %d, want 2", metricScore, got)
	}
	// Three audits per successful pair.
	if got := len(mfs[metricAudit].GetMetric()); got != 6 {
		t.Errorf("%s samples = %d, want 6", metricAudit, got)
	}
	if got := mfs[metricLastRun].GetMetric()[0].GetGauge().GetValue(); got != float64(now.Unix()) {
		t.Errorf("%s = %v, want %v", metricLastRun, got, now.Unix())
	}

	for _, m := range mfs[metricSuccess].GetMetric() {
		labels := map[string]string{}
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		want := 1.0
		if labels["url"] == "http://down.test" {
			want = 0
		}
		if got := m.GetGauge().GetValue(); got != want {
			t.Errorf("success{url=%q,strategy=%q} = %v, want %v", labels["url"], labels["strategy"], got, want)
		}
	}
}

func TestRender_Formats(t *testing.T) {
	res := fakeResult(t, map[string]string{"http://a.test": v5Response}, []string{"http://a.test", "http://b.test"}, pagespeed.StrategyDesktop)
	rep := New(res, nil, time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC))

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Render(&buf, FormatJSON, rep); err != nil {
			t.Fatalf("Render: %v", err)
		}
		var back struct {
			GeneratedAt time.Time                             `json:"generated_at"`
			Summary     []Summary                             `json:"summary"`
			Results     map[string]map[string]json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
			t.Fatalf("unmarshal: %v\n%s", err, buf.String())
		}
		if len(back.Summary) != 2 || len(back.Results) != 2 {
			t.Errorf("summary=%d results=%d, want 2 and 2", len(back.Summary), len(back.Results))
		}
		if a, b := strings.Index(buf.String(), `"http://a.test": {`), strings.Index(buf.String(), `"http://b.test": {`); a < 0 || b < a {
			t.Errorf("results not in input order:\n%s", buf.String())
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Render(&buf, FormatYAML, rep); err != nil {
			t.Fatalf("Render: %v", err)
		}
		var back map[string]any
		if err := yaml.Unmarshal(buf.Bytes(), &back); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		for _, k := range []string{"generated_at", "summary", "results"} {
			if _, ok := back[k]; !ok {
				t.Errorf("yaml missing key %q", k)
			}
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Render(&buf, FormatText, rep); err != nil {
			t.Fatalf("Render: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 3 {
			t.Fatalf("text lines = %d, want 3:\n%s", len(lines), buf.String())
		}
		if !strings.HasPrefix(lines[0], "URL") {
			t.Errorf("header = %q", lines[0])
		}
		if !strings.Contains(lines[1], "87") || !strings.Contains(lines[1], RatingNeedsImprovement) {
			t.Errorf("a.test row = %q", lines[1])
		}
		if !strings.Contains(lines[2], "failed") {
			t.Errorf("b.test row = %q", lines[2])
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if err := Render(&bytes.Buffer{}, "xml", rep); err == nil {
			t.Error("expected error for unknown format")
		}
	})
}
