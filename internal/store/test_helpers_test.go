package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/photostack/internal/ir"
)

// baseTime anchors capture times so member order is predictable.
var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new temp-dir store with deterministic stack ids
// ("stack-1", "stack-2", ...).
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithIDGenerator(ir.NewFixedGenerator("stack")))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// putAssets inserts assets for owner; the i-th asset is captured i seconds after baseTime.
func putAssets(t *testing.T, s *Store, owner, key string, ids ...string) {
	t.Helper()
	for i, id := range ids {
		err := s.PutAsset(context.Background(), ir.Asset{
			ID:          id,
			OwnerID:     owner,
			GroupingKey: key,
			CapturedAt:  baseTime.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("PutAsset(%s) failed: %v", id, err)
		}
	}
}
