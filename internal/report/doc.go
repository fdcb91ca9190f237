// Package report turns a pagespeed.BatchResult into something a person or a
// monitoring system can read.
//
// summary.go flattens each (URL, strategy) outcome into a Summary: the
// performance score (v5 lighthouseResult or v2 ruleGroups), a rating
// (good ≥90, needs-improvement ≥50, poor), the field-data category and a
// fixed set of Lighthouse audit values.
//
// tracker.go keeps a bounded success history per pair across repeated
// batches so interval runs can report availability.
//
// render.go and prom.go write a Report as JSON, YAML, an aligned text table
// or a Prometheus text exposition.
package report
