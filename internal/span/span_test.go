package span

import (
	"testing"
	"time"
)

func TestFormatTime_FixedWidth(t *testing.T) {
	cases := []time.Time{
		time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 15, 12, 30, 45, 500, time.UTC),
		time.Date(2024, 6, 15, 12, 30, 45, 999999999, time.UTC),
	}
	for _, tc := range cases {
		got := FormatTime(tc)
		if len(got) != len(EpochTime) {
			t.Errorf("FormatTime(%v) = %q: expected fixed width %d, got %d",
				tc, got, len(EpochTime), len(got))
		}
	}
}

func TestFormatTime_LexicographicOrderMatchesTemporal(t *testing.T) {
	// Cursor comparisons in SQL are plain string comparisons, so the
	// encoding must order exactly like the timestamps themselves. The
	// trailing-nanosecond cases are where RFC3339Nano would break.
	times := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 1, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 100000000, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	for i := 1; i < len(times); i++ {
		a, b := FormatTime(times[i-1]), FormatTime(times[i])
		if !(a < b) {
			t.Errorf("expected %q < %q", a, b)
		}
	}
}

func TestParseTime_RoundTrip(t *testing.T) {
	original := time.Date(2024, 6, 15, 12, 30, 45, 123456789, time.UTC)
	parsed, err := ParseTime(FormatTime(original))
	if err != nil {
		t.Fatalf("ParseTime() failed: %v", err)
	}
	if !parsed.Equal(original) {
		t.Errorf("round trip changed the time: %v vs %v", parsed, original)
	}
}

func TestParseTime_RejectsMalformed(t *testing.T) {
	if _, err := ParseTime("2024-06-15T12:30:45Z"); err == nil {
		t.Error("variable-width timestamps must be rejected")
	}
	if _, err := ParseTime("not a time"); err == nil {
		t.Error("garbage must be rejected")
	}
}

func TestWellKnownKernelIDs_Stable(t *testing.T) {
	// These ids are a deployment contract.
	want := []string{
		"00000000-0000-4000-8000-000000000001",
		"00000000-0000-4000-8000-000000000002",
		"00000000-0000-4000-8000-000000000003",
		"00000000-0000-4000-8000-000000000004",
		"00000000-0000-4000-8000-000000000005",
	}
	got := []string{
		RunCodeKernelID,
		ObserverKernelID,
		RequestWorkerKernelID,
		PolicyAgentKernelID,
		ProviderExecKernelID,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("kernel id %d: got %s, want %s", i, got[i], want[i])
		}
	}
	if len(WellKnownKernelIDs) != 5 {
		t.Errorf("expected 5 well-known kernels, got %d", len(WellKnownKernelIDs))
	}
}
