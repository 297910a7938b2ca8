package browser

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPartitionDirIsolation(t *testing.T) {
	a := PartitionDir("/data", "acct-a1")
	b := PartitionDir("/data", "acct-a2")
	if a == b {
		t.Fatalf("distinct keys map to the same directory: %s", a)
	}
	if a != filepath.Join("/data", "partitions", "acct-a1") {
		t.Errorf("unexpected layout: %s", a)
	}
}

func TestSanitizeKey(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"acct-a1", "acct-a1"},
		{"../../etc", ".._.._etc"},
		{"a b/c", "a_b_c"},
	} {
		if got := sanitizeKey(tc.in); got != tc.want {
			t.Errorf("sanitizeKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPurgePartition(t *testing.T) {
	dataDir := t.TempDir()
	keep := PartitionDir(dataDir, "acct-keep")
	gone := PartitionDir(dataDir, "acct-gone")
	for _, dir := range []string{keep, gone} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "Cookies"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := PurgePartition(dataDir, "acct-gone"); err != nil {
		t.Fatalf("PurgePartition: %v", err)
	}
	if _, err := os.Stat(gone); !os.IsNotExist(err) {
		t.Error("purged partition still exists")
	}
	// Purging one account never touches another's partition.
	if _, err := os.Stat(filepath.Join(keep, "Cookies")); err != nil {
		t.Errorf("unrelated partition was touched: %v", err)
	}

	if err := PurgePartition(dataDir, "  "); err == nil {
		t.Error("expected error for empty partition key")
	}
}
