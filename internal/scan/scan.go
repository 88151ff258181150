package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Unit is one source file the remediation cycle operates over,
// identified by its repo-relative slash path.
type Unit struct {
	Path    string
	Content string
	Size    int64
}

// Options controls which files are eligible for a scan.
type Options struct {
	// Extensions whitelists lowercased file extensions (".py", ".js").
	Extensions []string
	// IgnoreDirs are directory basenames skipped entirely.
	IgnoreDirs []string
	// MaxFileBytes skips files larger than this ceiling.
	MaxFileBytes int64
}

// DefaultOptions mirrors the file-eligibility rules of the audit stage:
// script sources only, dependency/VCS trees skipped, 256 KiB ceiling.
func DefaultOptions() Options {
	return Options{
		Extensions: []string{".py", ".js", ".go"},
		IgnoreDirs: []string{
			".git", ".hg", ".svn", "node_modules", "__pycache__",
			".venv", "venv", "env", ".tox", ".mypy_cache",
			"dist", "build", "vendor",
		},
		MaxFileBytes: 256 * 1024,
	}
}

const cacheSize = 512

type cachedContent struct {
	modTime int64
	size    int64
	content string
}

// Collector walks a root and returns the eligible units in a fixed,
// deterministic order. File contents are cached across collections by
// (path, mtime) so repeated cycles over the same root avoid re-reads.
type Collector struct {
	opts  Options
	cache *lru.Cache[string, cachedContent]
}

func NewCollector(opts Options) *Collector {
	if len(opts.Extensions) == 0 {
		opts = DefaultOptions()
	}
	cache, _ := lru.New[string, cachedContent](cacheSize)
	return &Collector{opts: opts, cache: cache}
}

// Collect returns every eligible unit under root, sorted by path.
// A missing or non-directory root is a hard error; unreadable
// individual files are skipped.
func (c *Collector) Collect(root string) ([]Unit, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scan: root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan: root %s is not a directory", root)
	}

	ignore := make(map[string]bool, len(c.opts.IgnoreDirs))
	for _, d := range c.opts.IgnoreDirs {
		ignore[d] = true
	}
	exts := make(map[string]bool, len(c.opts.Extensions))
	for _, e := range c.opts.Extensions {
		exts[strings.ToLower(e)] = true
	}

	var units []Unit
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && ignore[filepath.Base(path)] {
				return filepath.SkipDir
			}
			return nil
		}
		if !exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		fi, err := os.Stat(path)
		if err != nil {
			return nil
		}
		if c.opts.MaxFileBytes > 0 && fi.Size() > c.opts.MaxFileBytes {
			return nil
		}

		content, ok := c.lookup(path, fi)
		if !ok {
			b, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			content = string(b)
			c.store(path, fi, content)
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		units = append(units, Unit{
			Path:    filepath.ToSlash(rel),
			Content: content,
			Size:    fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(units, func(i, j int) bool { return units[i].Path < units[j].Path })
	return units, nil
}

func (c *Collector) lookup(path string, fi fs.FileInfo) (string, bool) {
	entry, ok := c.cache.Get(path)
	if !ok || entry.modTime != fi.ModTime().UnixNano() || entry.size != fi.Size() {
		return "", false
	}
	return entry.content, true
}

func (c *Collector) store(path string, fi fs.FileInfo, content string) {
	c.cache.Add(path, cachedContent{
		modTime: fi.ModTime().UnixNano(),
		size:    fi.Size(),
		content: content,
	})
}
