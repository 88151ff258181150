package scan

import (
	"os"
	"path/filepath"
	"testing"
)

func write(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func paths(units []Unit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.Path
	}
	return out
}

func TestCollect_FiltersAndOrder(t *testing.T) {
	root := t.TempDir()
	write(t, root, "b.py", "print('b')")
	write(t, root, "a.js", "console.log('a')")
	write(t, root, "readme.md", "# skipped extension")
	write(t, root, "node_modules/x.js", "ignored")
	write(t, root, ".git/config.py", "ignored")
	write(t, root, "pkg/deep/c.py", "print('c')")

	c := NewCollector(DefaultOptions())
	units, err := c.Collect(root)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	want := []string{"a.js", "b.py", "pkg/deep/c.py"}
	got := paths(units)
	if len(got) != len(want) {
		t.Fatalf("got=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got=%v want=%v", got, want)
		}
	}
	if units[1].Content != "print('b')" {
		t.Fatalf("content not read: %q", units[1].Content)
	}
}

func TestCollect_SizeCeiling(t *testing.T) {
	root := t.TempDir()
	write(t, root, "small.py", "ok")
	big := make([]byte, 4096)
	write(t, root, "big.py", string(big))

	opts := DefaultOptions()
	opts.MaxFileBytes = 1024
	c := NewCollector(opts)
	units, err := c.Collect(root)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(units) != 1 || units[0].Path != "small.py" {
		t.Fatalf("got=%v", paths(units))
	}
}

func TestCollect_MissingRoot(t *testing.T) {
	c := NewCollector(DefaultOptions())
	if _, err := c.Collect(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestCollect_CacheServesUnchangedFiles(t *testing.T) {
	root := t.TempDir()
	p := write(t, root, "a.py", "v1")

	c := NewCollector(DefaultOptions())
	if _, err := c.Collect(root); err != nil {
		t.Fatalf("collect: %v", err)
	}

	// Rewrite the file; the mtime/size change must invalidate the entry.
	if err := os.WriteFile(p, []byte("v2 longer"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	units, err := c.Collect(root)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if units[0].Content != "v2 longer" {
		t.Fatalf("stale cache content: %q", units[0].Content)
	}
}
