package report

import (
	"github.com/duplexmedia/pagespeed/pkg/pagespeed"
)

// Rating constants derived from the performance score.
const (
	RatingGood             = "good"
	RatingNeedsImprovement = "needs-improvement"
	RatingPoor             = "poor"
	RatingUnknown          = "unknown"
)

// Thresholds that map a score to a rating, as used by Lighthouse.
const (
	ThresholdGood             = 90.0
	ThresholdNeedsImprovement = 50.0
)

// auditIDs are the Lighthouse audits whose numericValue is exported.
var auditIDs = []string{
	"first-contentful-paint",
	"largest-contentful-paint",
	"total-blocking-time",
	"cumulative-layout-shift",
	"speed-index",
	"interactive",
}

// Summary is the flattened view of one (URL, strategy) outcome.
type Summary struct {
	URL      string `json:"url" yaml:"url"`
	Strategy string `json:"strategy" yaml:"strategy"`
	Success  bool   `json:"success" yaml:"success"`

	// Score is the performance score in 0–100. Nil when the response carried none.
	Score  *float64 `json:"score,omitempty" yaml:"score,omitempty"`
	Rating string   `json:"rating" yaml:"rating"`

	// FieldCategory is loadingExperience.overall_category (FAST, AVERAGE, SLOW), if present.
	FieldCategory string `json:"field_category,omitempty" yaml:"field_category,omitempty"`

	// Audits holds numericValue per audit id (milliseconds, or unitless for CLS).
	Audits map[string]float64 `json:"audits,omitempty" yaml:"audits,omitempty"`

	// AvailabilityPct is the share of recent queries for this pair that succeeded.
	AvailabilityPct float64 `json:"availability_pct" yaml:"availability_pct"`

	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Summarize flattens a batch result into one Summary per pair, in result
// order. AvailabilityPct reflects this batch alone (100 or 0).
func Summarize(br *pagespeed.BatchResult) []Summary {
	out := make([]Summary, 0, br.Len())
	br.Each(func(url string, s pagespeed.Strategy, o pagespeed.Outcome) {
		out = append(out, summarize(url, s, o))
	})
	return out
}

func summarize(url string, s pagespeed.Strategy, o pagespeed.Outcome) Summary {
	sum := Summary{
		URL:      url,
		Strategy: string(s),
		Success:  o.Success,
		Rating:   RatingUnknown,
	}
	if !o.Success {
		if o.Err != nil {
			sum.Error = o.Err.Error()
		}
		return sum
	}
	sum.AvailabilityPct = 100

	if score, ok := ExtractScore(o.Data); ok {
		sum.Score = &score
		sum.Rating = ratingFromScore(score)
	}
	if cat, ok := lookup(o.Data, "loadingExperience", "overall_category"); ok {
		sum.FieldCategory, _ = cat.(string)
	}
	for _, id := range auditIDs {
		v, ok := lookup(o.Data, "lighthouseResult", "audits", id, "numericValue")
		if !ok {
			continue
		}
		if f, ok := v.(float64); ok {
			if sum.Audits == nil {
				sum.Audits = make(map[string]float64, len(auditIDs))
			}
			sum.Audits[id] = f
		}
	}
	return sum
}

// ExtractScore returns the performance score (0–100) from a decoded response.
// v5 responses carry lighthouseResult.categories.performance.score in 0–1;
// v2 responses carry ruleGroups.SPEED.score in 0–100.
func ExtractScore(data any) (float64, bool) {
	if v, ok := lookup(data, "lighthouseResult", "categories", "performance", "score"); ok {
		if f, ok := v.(float64); ok {
			return clamp(f*100, 0, 100), true
		}
	}
	if v, ok := lookup(data, "ruleGroups", "SPEED", "score"); ok {
		if f, ok := v.(float64); ok {
			return clamp(f, 0, 100), true
		}
	}
	return 0, false
}

// ratingFromScore maps a numeric score to a named rating.
func ratingFromScore(score float64) string {
	switch {
	case score >= ThresholdGood:
		return RatingGood
	case score >= ThresholdNeedsImprovement:
		return RatingNeedsImprovement
	default:
		return RatingPoor
	}
}

// lookup walks nested JSON objects along path.
func lookup(v any, path ...string) (any, bool) {
	for _, key := range path {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		if v, ok = m[key]; !ok {
			return nil, false
		}
	}
	return v, v != nil
}

// clamp restricts v to the range [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
