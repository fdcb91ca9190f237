package report

import (
	"fmt"
	"io"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Metric names written by WritePrometheus.
const (
	metricSuccess      = "pagespeed_query_success"
	metricScore        = "pagespeed_performance_score"
	metricAvailability = "pagespeed_availability_ratio"
	metricAudit        = "pagespeed_audit_numeric_value"
	metricLastRun      = "pagespeed_last_run_timestamp_seconds"
)

// WritePrometheus renders summaries in the Prometheus text exposition
// format, suitable for the node_exporter textfile collector.
// Families with no samples are omitted.
func WritePrometheus(w io.Writer, summaries []Summary, generatedAt time.Time) error {
	success := gaugeFamily(metricSuccess, "Whether the last PageSpeed query for the pair succeeded (1) or failed (0).")
	score := gaugeFamily(metricScore, "Lighthouse performance score, 0-100.")
	avail := gaugeFamily(metricAvailability, "Share of recent PageSpeed queries for the pair that succeeded, 0-1.")
	audit := gaugeFamily(metricAudit, "Lighthouse audit numericValue (milliseconds, unitless for CLS).")
	lastRun := gaugeFamily(metricLastRun, "Unix time the batch finished.")

	for _, s := range summaries {
		labels := pairLabels(s)

		var ok float64
		if s.Success {
			ok = 1
		}
		success.Metric = append(success.Metric, gauge(labels, ok))
		avail.Metric = append(avail.Metric, gauge(labels, s.AvailabilityPct/100))

		if s.Score != nil {
			score.Metric = append(score.Metric, gauge(labels, *s.Score))
		}
		// auditIDs fixes the order; map iteration would not.
		for _, id := range auditIDs {
			v, found := s.Audits[id]
			if !found {
				continue
			}
			l := append(pairLabels(s), labelPair("audit", id))
			audit.Metric = append(audit.Metric, gauge(l, v))
		}
	}
	lastRun.Metric = append(lastRun.Metric, gauge(nil, float64(generatedAt.Unix())))

	for _, mf := range []*dto.MetricFamily{success, score, avail, audit, lastRun} {
		if len(mf.Metric) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("report: write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func gaugeFamily(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

func gauge(labels []*dto.LabelPair, v float64) *dto.Metric {
	return &dto.Metric{
		Label: labels,
		Gauge: &dto.Gauge{Value: proto.Float64(v)},
	}
}

func pairLabels(s Summary) []*dto.LabelPair {
	return []*dto.LabelPair{
		labelPair("url", s.URL),
		labelPair("strategy", s.Strategy),
	}
}

func labelPair(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}
