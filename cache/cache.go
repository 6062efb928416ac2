// Package cache persists raw listing pages on disk, one file per page index.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotUTF8 is returned when content to be cached is not valid UTF-8.
var ErrNotUTF8 = errors.New("cache: content is not valid UTF-8")

var pageFile = regexp.MustCompile(`^(0|[1-9][0-9]*)\.html$`)

// PageCache is a directory of <index>.html captures. It is not safe for
// concurrent writers to the same index.
type PageCache struct {
	dir    string
	memory *lru.Cache[int, []byte]
}

// New returns a cache rooted at dir. memoryPages bounds the number of pages
// kept in memory after a read or write; zero disables the memory layer.
func New(dir string, memoryPages int) (*PageCache, error) {
	c := &PageCache{dir: dir}
	if memoryPages > 0 {
		memory, err := lru.New[int, []byte](memoryPages)
		if err != nil {
			return nil, fmt.Errorf("create memory cache: %w", err)
		}
		c.memory = memory
	}
	return c, nil
}

// Dir returns the cache directory.
func (c *PageCache) Dir() string {
	return c.dir
}

// Path returns the file path for index.
func (c *PageCache) Path(index int) string {
	return filepath.Join(c.dir, strconv.Itoa(index)+".html")
}

// Indices returns every cached page index in ascending numeric order. A
// missing directory yields no indices.
func (c *PageCache) Indices() ([]int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list cache dir: %w", err)
	}

	indices := make([]int, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := pageFile.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		index, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices, nil
}

// IsEmpty reports whether no page file exists.
func (c *PageCache) IsEmpty() (bool, error) {
	indices, err := c.Indices()
	if err != nil {
		return false, err
	}
	return len(indices) == 0, nil
}

// HighestIndex returns the resume frontier, or 0 when nothing is cached.
func (c *PageCache) HighestIndex() (int, error) {
	indices, err := c.Indices()
	if err != nil {
		return 0, err
	}
	if len(indices) == 0 {
		return 0, nil
	}
	return indices[len(indices)-1], nil
}

// LowestIndex returns the smallest cached index and whether one exists.
func (c *PageCache) LowestIndex() (int, bool, error) {
	indices, err := c.Indices()
	if err != nil {
		return 0, false, err
	}
	if len(indices) == 0 {
		return 0, false, nil
	}
	return indices[0], true, nil
}

// Has reports whether index is cached.
func (c *PageCache) Has(index int) (bool, error) {
	if c.memory != nil && c.memory.Contains(index) {
		return true, nil
	}
	_, err := os.Stat(c.Path(index))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat cached page %d: %w", index, err)
}

// Read loads the raw content stored for index.
func (c *PageCache) Read(index int) ([]byte, error) {
	if c.memory != nil {
		if data, ok := c.memory.Get(index); ok {
			return clone(data), nil
		}
	}

	data, err := os.ReadFile(c.Path(index))
	if err != nil {
		return nil, fmt.Errorf("read cached page %d: %w", index, err)
	}
	if c.memory != nil {
		c.memory.Add(index, clone(data))
	}
	return data, nil
}

// Write stores content for index, replacing any previous capture. The file
// is written to a temporary name first so a crash never leaves a truncated
// page behind a valid name.
func (c *PageCache) Write(index int, content []byte) error {
	if index < 0 {
		return fmt.Errorf("cache index must not be negative: %d", index)
	}
	if !utf8.Valid(content) {
		return fmt.Errorf("write cached page %d: %w", index, ErrNotUTF8)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir %q: %w", c.dir, err)
	}

	tmp, err := os.CreateTemp(c.dir, ".page-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp page: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write cached page %d: %w", index, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cached page %d: %w", index, err)
	}
	if err := os.Rename(tmpName, c.Path(index)); err != nil {
		return fmt.Errorf("commit cached page %d: %w", index, err)
	}

	if c.memory != nil {
		c.memory.Add(index, clone(content))
	}
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
