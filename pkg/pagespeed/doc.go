// Package pagespeed queries the PageSpeed Insights API for many URLs and
// strategies at once.
//
// A Client is built once with New(Options) and reused. Query and QueryAsync
// take a list of URLs, a locale and a Strategy ("desktop", "mobile" or
// "both"), start one GET per (URL, strategy) pair before waiting on any of
// them, and settle every request regardless of failures. The result is a
// BatchResult keyed URL → strategy → Outcome, with URLs in input order.
//
// Request failures (transport errors, timeouts, non-2xx status, undecodable
// bodies) become Outcome{Success: false}; they never abort the batch. Only
// misuse (no URLs, an empty URL) is returned as an error.
//
// Authentication (API key as query parameter or header) and TLS options are
// applied by a RoundTripper wrapped around the shared transport in client.go.
package pagespeed
