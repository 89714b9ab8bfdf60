package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newFileStore(t *testing.T) *Store {
	t.Helper()
	backend, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	return NewStore(backend)
}

// TestFileBackendRoundTrip verifies save, read back, and key listing.
func TestFileBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	payload := map[string]interface{}{"KUNNR": "000001", "LAND1": "DE"}
	if err := store.Save(ctx, "customer_master", "KNA1.000001", payload); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, "customer_master", "KNA1.000002", nil); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec, err := store.Backend().Get(ctx, "customer_master", "KNA1.000001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Key != "KNA1.000001" || rec.Payload["LAND1"] != "DE" {
		t.Errorf("record = %+v", rec)
	}
	if rec.SavedAt.IsZero() {
		t.Error("saved_at not set")
	}

	keys, err := store.Backend().Keys(ctx, "customer_master")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "KNA1.000001" {
		t.Errorf("keys = %v", keys)
	}
}

// TestCompletionSentinel verifies MarkComplete is a separate sentinel that
// Keys never reports.
func TestCompletionSentinel(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	done, err := store.IsComplete(ctx, "m1")
	if err != nil || done {
		t.Fatalf("fresh extractor complete=%v err=%v", done, err)
	}

	if err := store.Save(ctx, "m1", "k1", nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.MarkComplete(ctx, "m1"); err != nil {
		t.Fatalf("mark: %v", err)
	}

	done, err = store.IsComplete(ctx, "m1")
	if err != nil || !done {
		t.Fatalf("complete=%v err=%v", done, err)
	}

	keys, err := store.Backend().Keys(ctx, "m1")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "k1" {
		t.Errorf("sentinel leaked into keys: %v", keys)
	}
}

// TestClearDropsEverything verifies Clear removes records and the sentinel.
func TestClearDropsEverything(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	_ = store.Save(ctx, "m1", "k1", nil)
	_ = store.MarkComplete(ctx, "m1")
	if err := store.Clear(ctx, "m1"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	done, _ := store.IsComplete(ctx, "m1")
	if done {
		t.Error("still complete after clear")
	}
	has, err := store.HasKey(ctx, "m1", "k1")
	if err != nil || has {
		t.Errorf("has=%v err=%v after clear", has, err)
	}
}

// TestHasKeyHydratesFromBackend verifies a fresh Store sees keys written by a
// previous process.
func TestHasKeyHydratesFromBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	if err := NewStore(first).Save(ctx, "m1", "k1", nil); err != nil {
		t.Fatalf("save: %v", err)
	}

	second, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	fresh := NewStore(second)
	has, err := fresh.HasKey(ctx, "m1", "k1")
	if err != nil {
		t.Fatalf("haskey: %v", err)
	}
	if !has {
		t.Error("fresh store must hydrate existing keys")
	}
	has, err = fresh.HasKey(ctx, "m1", "k2")
	if err != nil || has {
		t.Errorf("unknown key: has=%v err=%v", has, err)
	}
}

// TestSanitizedKeysStayOnDisk verifies keys with path-hostile characters
// still land inside the extractor directory.
func TestSanitizedKeysStayOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	store := NewStore(backend)

	if err := store.Save(ctx, "m1", "KNA1/00 1:a", nil); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "m1"))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "KNA1_00_1_a.json" {
		t.Errorf("entries = %v", entries)
	}
}

// TestGetMissingRecord verifies the not-found contract.
func TestGetMissingRecord(t *testing.T) {
	store := newFileStore(t)
	_, err := store.Backend().Get(context.Background(), "m1", "nope")
	if !os.IsNotExist(err) {
		t.Errorf("expected not-exist, got %v", err)
	}
}
