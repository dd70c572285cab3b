// Package situation builds the layered situational context that enriches
// every unit invocation, and governs which of its signals survive to the
// unit: static filters, preference-based suppression and prioritization,
// adaptive auto-suppression driven by feedback aggregates, and privacy
// transforms. Debug observers may subscribe to four fixed checkpoints of the
// enrichment pipeline.
//
// A Context is built fresh per call and never persisted. Suppressed
// categories are reset to documented empty defaults, never omitted, so
// consumers need no presence checks.
package situation
