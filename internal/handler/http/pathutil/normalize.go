// Package pathutil normalizes request paths before they become Prometheus
// label values, so a scan against unknown paths can't blow up the
// http_requests_total cardinality.
package pathutil

import "strings"

// knownPaths is the full route table exposed by cmd/api: the read-only
// status surface plus the operator health/metrics endpoints. Keep this in
// sync with cmd/api/main.go's mux registrations.
var knownPaths = map[string]bool{
	"/status/sources":    true,
	"/status/runs":       true,
	"/status/moderation": true,
	"/health":            true,
	"/ready":             true,
	"/live":              true,
	"/metrics":           true,
}

// unmatchedLabel is the label value assigned to any path outside
// knownPaths, so probing or scanning traffic collapses to a single series
// instead of one series per path attempted.
const unmatchedLabel = "/unmatched"

// NormalizePath maps path to its Prometheus label value: a known route is
// returned as-is (query string and trailing slash stripped), anything else
// collapses to unmatchedLabel.
func NormalizePath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx != -1 {
		path = path[:idx]
	}
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}

	if knownPaths[path] {
		return path
	}
	return unmatchedLabel
}

// ExpectedCardinality returns the number of distinct path labels the
// normalizer can emit: the known routes plus the unmatched bucket.
func ExpectedCardinality() int {
	return len(knownPaths) + 1
}
