// Package loader turns raw corpus files into storage documents ready to be indexed.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// File is one raw corpus file.
type File struct {
	Path    string // Path relative to the source root, used as the chunk's source file
	Content []byte
}

// Source lists and reads corpus files. DirSource and github.Fetcher implement it.
type Source interface {
	Name() string
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, path string) (*File, error)
}

// DefaultPatterns are the files DirSource picks up when none are configured.
var DefaultPatterns = []string{"**/*.txt", "**/*.md", "**/*.markdown"}

// DirSource reads files under a local directory that match any of its glob patterns.
type DirSource struct {
	root     string
	patterns []string
}

// NewDirSource creates a DirSource. Patterns use doublestar syntax relative to root.
func NewDirSource(root string, patterns ...string) *DirSource {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	return &DirSource{root: root, patterns: patterns}
}

// Root returns the directory being read.
func (d *DirSource) Root() string { return d.root }

// Name implements Source.
func (d *DirSource) Name() string { return "dir:" + d.root }

// List returns matching file paths relative to root, sorted and de-duplicated.
func (d *DirSource) List(ctx context.Context) ([]string, error) {
	info, err := os.Stat(d.root)
	if err != nil {
		return nil, fmt.Errorf("open data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data directory %s is not a directory", d.root)
	}

	fsys := os.DirFS(d.root)
	seen := make(map[string]struct{})
	var paths []string
	for _, pattern := range d.patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			paths = append(paths, m)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Read implements Source.
func (d *DirSource) Read(ctx context.Context, path string) (*File, error) {
	content, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(path)))
	if err != nil {
		return nil, err
	}
	return &File{Path: path, Content: content}, nil
}

// Matches reports whether a path relative to root would be picked up by List.
func (d *DirSource) Matches(path string) bool {
	path = filepath.ToSlash(path)
	for _, pattern := range d.patterns {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}
