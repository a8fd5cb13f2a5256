package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func mustWrite(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
}

func names(m Manifest) []string {
	out := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		out[i] = e.Name
	}
	return out
}

func TestBuild_FilesAndDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	// Create test structure:
	// a.txt
	// dir1/x.txt
	// dir1/sub/z.txt
	// dir2/y.txt
	aPath := filepath.Join(tmpDir, "a.txt")
	dir1Path := filepath.Join(tmpDir, "dir1")
	dir2Path := filepath.Join(tmpDir, "dir2")
	mustWrite(t, aPath, "file a")
	mustWrite(t, filepath.Join(dir1Path, "x.txt"), "file x")
	mustWrite(t, filepath.Join(dir1Path, "sub", "z.txt"), "zz")
	mustWrite(t, filepath.Join(dir2Path, "y.txt"), "file y")

	m, err := Build([]string{dir2Path, aPath, dir1Path})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	expected := []string{"a.txt", "dir1/sub/z.txt", "dir1/x.txt", "dir2/y.txt"}
	got := names(m)
	if len(got) != len(expected) {
		t.Fatalf("Entry count = %d, want %d. Entries: %v", len(got), len(expected), got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Entry[%d] = %s, want %s", i, got[i], expected[i])
		}
	}
	if m.TotalBytes != 6+6+2+6 {
		t.Errorf("TotalBytes = %d, want 20", m.TotalBytes)
	}
	if m.Entries[0].Path != aPath {
		t.Errorf("Entry[0].Path = %s, want %s", m.Entries[0].Path, aPath)
	}
}

func TestBuild_BaseNameCollision(t *testing.T) {
	tmpDir := t.TempDir()
	first := filepath.Join(tmpDir, "one", "report.txt")
	second := filepath.Join(tmpDir, "two", "report.txt")
	mustWrite(t, first, "1")
	mustWrite(t, second, "22")

	m, err := Build([]string{first, second})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	got := names(m)
	if len(got) != 2 || got[0] != "1_report.txt" || got[1] != "2_report.txt" {
		t.Fatalf("unexpected names %v", got)
	}
	if m.Entries[1].Size != 2 {
		t.Errorf("second entry size = %d, want 2", m.Entries[1].Size)
	}
}

func TestBuild_MissingPath(t *testing.T) {
	tmpDir := t.TempDir()
	ok := filepath.Join(tmpDir, "ok.txt")
	mustWrite(t, ok, "ok")

	m, err := Build([]string{ok, filepath.Join(tmpDir, "nope")})
	if err == nil {
		t.Fatalf("expected error for missing path")
	}
	if len(m.Entries) != 1 || m.Entries[0].Name != "ok.txt" {
		t.Fatalf("expected readable entries to be kept, got %v", names(m))
	}
}

func TestBuild_NoPaths(t *testing.T) {
	if _, err := Build(nil); err == nil {
		t.Fatalf("expected error for empty path list")
	}
}

func TestBuild_EmptyDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	empty := filepath.Join(tmpDir, "empty")
	if err := os.Mkdir(empty, 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	m, err := Build([]string{empty})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(m.Entries) != 0 {
		t.Fatalf("expected no entries, got %v", names(m))
	}
}

func TestID_Stable(t *testing.T) {
	m := Manifest{Entries: []Entry{{Name: "a", Size: 1}, {Name: "b/c", Size: 2}}}
	id1 := ID(m)
	id2 := ID(m)
	if id1 != id2 {
		t.Fatalf("ID not stable: %s vs %s", id1, id2)
	}
	if len(id1) != 16 {
		t.Fatalf("ID length = %d, want 16", len(id1))
	}
	m.Entries[1].Size = 3
	if ID(m) == id1 {
		t.Fatalf("expected ID to change with entry size")
	}
	if ID(Manifest{}) != "" {
		t.Fatalf("expected empty ID for empty manifest")
	}
}
