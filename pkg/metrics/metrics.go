// Package metrics holds the Prometheus collectors exported by the API and
// the cron worker. Every constructor accepts a nil registerer and returns a
// recorder whose methods are no-ops, so tests can skip wiring.
package metrics

const namespace = "beatstore"

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
