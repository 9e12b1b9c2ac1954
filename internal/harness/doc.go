// Package harness runs YAML-defined ledger scenarios for conformance
// testing.
//
// A scenario seeds the ledger, boots a sequence of functions through the
// loader, and then asserts on the resulting span set. Determinism comes
// from the harness wiring: a stepping clock and sequential identifiers
// make the same scenario produce the same ledger on every run, which is
// what makes golden snapshot comparison possible.
//
// Scenario files live in testdata/scenarios, golden ledgers in
// testdata/golden. To regenerate golden files:
//
//	go test ./internal/harness -update
package harness
