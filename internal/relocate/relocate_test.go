package relocate

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestFreeName(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		existing []string
		file     string
		want     string
	}{
		{"free", nil, "foo.pdf", "foo.pdf"},
		{"first collision", []string{"foo.pdf"}, "foo.pdf", "foo_0.pdf"},
		{"second collision", []string{"foo.pdf", "foo_0.pdf"}, "foo.pdf", "foo_1.pdf"},
		{"gap is reused", []string{"foo.pdf", "foo_1.pdf"}, "foo.pdf", "foo_0.pdf"},
		{"no extension", []string{"README"}, "README", "README_0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := filepath.Join(dir, tt.name)
			for _, e := range tt.existing {
				writeFile(t, filepath.Join(sub, e), "old")
			}
			got, err := FreeName(sub, tt.file)
			if err != nil {
				t.Fatalf("FreeName() failed: %v", err)
			}
			if want := filepath.Join(sub, tt.want); got != want {
				t.Errorf("FreeName() = %q, want %q", got, want)
			}
		})
	}
}

func TestMoveWithSuffix_Sequence(t *testing.T) {
	root := t.TempDir()
	watch := filepath.Join(root, "watch")
	archive := filepath.Join(root, "archive")

	want := []string{"foo.pdf", "foo_0.pdf", "foo_1.pdf"}
	for i, w := range want {
		src := filepath.Join(watch, "foo.pdf")
		writeFile(t, src, w)

		got, err := MoveWithSuffix(src, archive)
		if err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
		if got != filepath.Join(archive, w) {
			t.Errorf("move %d: dest = %q, want %q", i, got, filepath.Join(archive, w))
		}
		if _, err := os.Stat(src); !os.IsNotExist(err) {
			t.Errorf("move %d: source still exists", i)
		}
	}

	if got := readFile(t, filepath.Join(archive, "foo.pdf")); got != "foo.pdf" {
		t.Errorf("original archive content overwritten: %q", got)
	}
}

func TestMoveReplacing(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "watch", "1003.pdf")
	quarantine := filepath.Join(root, "error")

	writeFile(t, filepath.Join(quarantine, "1003.pdf"), "stale")
	writeFile(t, src, "fresh")

	got, err := MoveReplacing(src, quarantine)
	if err != nil {
		t.Fatalf("MoveReplacing() failed: %v", err)
	}
	if got != filepath.Join(quarantine, "1003.pdf") {
		t.Errorf("dest = %q", got)
	}
	if content := readFile(t, got); content != "fresh" {
		t.Errorf("content = %q, want fresh", content)
	}

	entries, err := os.ReadDir(quarantine)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("quarantine has %d entries, want 1", len(entries))
	}
}

func TestMove_MissingSource(t *testing.T) {
	root := t.TempDir()
	if err := Move(filepath.Join(root, "nope.pdf"), filepath.Join(root, "out", "nope.pdf")); err == nil {
		t.Fatal("Move() should fail for a missing source")
	}
}

func TestCopyAtomic(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.pdf")
	dst := filepath.Join(root, "b.pdf")
	writeFile(t, src, "payload")

	if err := copyAtomic(src, dst); err != nil {
		t.Fatalf("copyAtomic() failed: %v", err)
	}
	if got := readFile(t, dst); got != "payload" {
		t.Errorf("content = %q", got)
	}
	if _, err := os.Stat(dst + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}
