package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	path := writeScenario(t, `
name: minimal
description: a single pinned span
spans:
  - id: s-1
    entity_type: note
assertions:
  - type: span_count
    entity_type: note
    count: 1
`)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "minimal", scenario.Name)
	assert.Len(t, scenario.Spans, 1)
}

func TestLoadScenario_UnknownFieldRejected(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: misspelled key fails loudly
bootstrap: true
stepss:
  - boot: x
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse YAML")
}

func TestLoadScenario_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing name",
			body: "description: d\nbootstrap: true\n",
			want: "name is required",
		},
		{
			name: "missing description",
			body: "name: n\nbootstrap: true\n",
			want: "description is required",
		},
		{
			name: "no spans or bootstrap",
			body: "name: n\ndescription: d\n",
			want: "spans or bootstrap",
		},
		{
			name: "span without entity_type",
			body: "name: n\ndescription: d\nspans:\n  - id: s-1\n",
			want: "entity_type is required",
		},
		{
			name: "step without boot",
			body: "name: n\ndescription: d\nbootstrap: true\nsteps:\n  - env: {A: b}\n",
			want: "boot is required",
		},
		{
			name: "assertion without type",
			body: "name: n\ndescription: d\nbootstrap: true\nassertions:\n  - entity_type: note\n",
			want: "type is required",
		},
		{
			name: "unknown assertion type",
			body: "name: n\ndescription: d\nbootstrap: true\nassertions:\n  - type: span_sum\n    entity_type: note\n",
			want: "unknown assertion type",
		},
		{
			name: "assertion without filter",
			body: "name: n\ndescription: d\nbootstrap: true\nassertions:\n  - type: span_exists\n",
			want: "filter field is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
