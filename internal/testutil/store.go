package testutil

import (
	"path/filepath"
	"testing"

	"github.com/roach88/spanos/internal/store"
)

// OpenStore creates a ledger database in a test-scoped temp directory and
// closes it when the test finishes.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return st
}
