package dataset

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiscoverTablesDirectory(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "b_hand.csv"), "")
	mustWrite(t, filepath.Join(dir, "nested", "a_hand.CSV"), "")
	mustWrite(t, filepath.Join(dir, "notes.txt"), "")

	tables, err := DiscoverTables(dir)
	if err != nil {
		t.Fatalf("DiscoverTables error: %v", err)
	}
	want := []string{
		filepath.Join(dir, "b_hand.csv"),
		filepath.Join(dir, "nested", "a_hand.CSV"),
	}
	if len(tables) != len(want) {
		t.Fatalf("expected %d tables, got %d", len(want), len(tables))
	}
	for i, table := range want {
		if tables[i] != table {
			t.Fatalf("table[%d]=%s want %s", i, tables[i], table)
		}
	}
}

func TestDiscoverTablesSingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	mustWrite(t, path, "1,a\n")

	tables, err := DiscoverTables(path)
	if err != nil {
		t.Fatalf("DiscoverTables error: %v", err)
	}
	if len(tables) != 1 || tables[0] != path {
		t.Fatalf("expected [%s], got %v", path, tables)
	}
}

func TestDiscoverTablesMissing(t *testing.T) {
	if _, err := DiscoverTables(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func mustWrite(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
