package harness

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/spanos/internal/span"
)

// LedgerSnapshot captures the full visible ledger for golden comparison.
// Canonical JSON serialization makes the snapshot byte-stable.
type LedgerSnapshot struct {
	ScenarioName string
	Ledger       []span.Span
}

func (s *LedgerSnapshot) canonical() ([]byte, error) {
	spans := make([]any, len(s.Ledger))
	for i, sp := range s.Ledger {
		raw, err := json.Marshal(sp)
		if err != nil {
			return nil, err
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var bag map[string]any
		if err := dec.Decode(&bag); err != nil {
			return nil, err
		}
		spans[i] = bag
	}
	return span.MarshalCanonical(map[string]any{
		"scenario_name": s.ScenarioName,
		"ledger":        spans,
	})
}

// AssertGolden compares a scenario result's ledger against the golden
// file testdata/golden/{name}.golden.
//
// Golden comparison only makes sense for scenarios whose spans carry
// explicit timestamps and ids, or that run entirely on the harness's
// deterministic clock and id generator.
//
// To regenerate golden files:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot := LedgerSnapshot{ScenarioName: name, Ledger: result.Ledger}
	data, err := snapshot.canonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
