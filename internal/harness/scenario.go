package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: ledger setup, boot steps,
// and assertions over the resulting span set.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Bootstrap installs the built-in kernels and default manifest
	// before the scenario's own spans.
	Bootstrap bool `yaml:"bootstrap,omitempty"`

	// Spans are inserted into the ledger before any step runs. Keys use
	// the span's wire names (id, entity_type, at, ...). Missing identity
	// fields get harness defaults; an explicit at pins the timestamp.
	Spans []map[string]any `yaml:"spans,omitempty"`

	// Steps boot functions through the loader, in order.
	Steps []Step `yaml:"steps,omitempty"`

	// Assertions validate the final ledger.
	// Supported types: span_count, span_exists, span_absent
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one boot invocation.
type Step struct {
	// Boot is the function id to boot.
	Boot string `yaml:"boot"`

	// Env contains extra environment entries for this invocation.
	// APP_TENANT_ID defaults to the harness tenant.
	Env map[string]string `yaml:"env,omitempty"`

	// ExpectError marks a boot that must be rejected; its error category
	// (VALIDATION, AUTHORIZATION, ...) must match.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates the final ledger.
type Assertion struct {
	// Type specifies the assertion type:
	// - "span_count": the filter matches exactly Count spans
	// - "span_exists": at least one match, optionally with Expect fields
	// - "span_absent": the filter matches nothing
	Type string `yaml:"type"`

	// Filter fields. Empty fields are not applied.
	EntityType string `yaml:"entity_type,omitempty"`
	Status     string `yaml:"status,omitempty"`
	ParentID   string `yaml:"parent_id,omitempty"`
	RelatedTo  string `yaml:"related_to,omitempty"`

	// Count is the expected number of matches (span_count).
	Count int `yaml:"count,omitempty"`

	// Expect contains expected field values on some matching span
	// (span_exists). Subset match over the span's wire representation.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertSpanCount  = "span_count"
	AssertSpanExists = "span_exists"
	AssertSpanAbsent = "span_absent"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Spans) == 0 && !s.Bootstrap {
		return fmt.Errorf("scenario needs spans or bootstrap")
	}

	for i, sp := range s.Spans {
		if _, ok := sp["entity_type"].(string); !ok {
			return fmt.Errorf("spans[%d]: entity_type is required", i)
		}
	}
	for i, step := range s.Steps {
		if step.Boot == "" {
			return fmt.Errorf("steps[%d]: boot is required", i)
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertSpanCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertSpanExists, AssertSpanAbsent:
		// Filter-only assertions.
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.EntityType == "" && a.Status == "" && a.ParentID == "" && a.RelatedTo == "" {
		return fmt.Errorf("assertions[%d]: at least one filter field is required", index)
	}
	return nil
}
