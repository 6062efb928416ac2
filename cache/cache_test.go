package cache

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func newTestCache(t *testing.T, memoryPages int) *PageCache {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "pages"), memoryPages)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("<html></html>"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestHighestIndexNumericOrder(t *testing.T) {
	c := newTestCache(t, 0)
	touch(t, c.Dir(), "3.html", "10.html", "1.html", "2.html")

	got, err := c.HighestIndex()
	if err != nil {
		t.Fatalf("highest index: %v", err)
	}
	if got != 10 {
		t.Fatalf("highest index = %d, want 10", got)
	}
}

func TestHighestIndexEmpty(t *testing.T) {
	tests := []struct {
		name  string
		files []string
	}{
		{name: "missing directory"},
		{name: "no page files", files: []string{"notes.txt", "page.htm", "007.html", "-1.html", "x.html"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCache(t, 0)
			if tt.files != nil {
				touch(t, c.Dir(), tt.files...)
			}

			got, err := c.HighestIndex()
			if err != nil {
				t.Fatalf("highest index: %v", err)
			}
			if got != 0 {
				t.Fatalf("highest index = %d, want 0", got)
			}
			empty, err := c.IsEmpty()
			if err != nil {
				t.Fatalf("is empty: %v", err)
			}
			if !empty {
				t.Fatalf("cache should be empty")
			}
		})
	}
}

func TestIndicesAndLowest(t *testing.T) {
	c := newTestCache(t, 0)
	touch(t, c.Dir(), "12.html", "4.html", "readme.md", "0.html")

	indices, err := c.Indices()
	if err != nil {
		t.Fatalf("indices: %v", err)
	}
	want := []int{0, 4, 12}
	if len(indices) != len(want) {
		t.Fatalf("indices = %v, want %v", indices, want)
	}
	for i := range want {
		if indices[i] != want[i] {
			t.Fatalf("indices = %v, want %v", indices, want)
		}
	}

	lowest, ok, err := c.LowestIndex()
	if err != nil || !ok || lowest != 0 {
		t.Fatalf("lowest = %d ok=%v err=%v, want 0 true nil", lowest, ok, err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	for _, memoryPages := range []int{0, 4} {
		c := newTestCache(t, memoryPages)
		content := []byte("<html><body><p>Très bon café — 5★</p></body></html>")

		if err := c.Write(7, content); err != nil {
			t.Fatalf("write: %v", err)
		}
		got, err := c.Read(7)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !bytes.Equal(got, content) {
			t.Fatalf("read = %q, want %q", got, content)
		}

		onDisk, err := os.ReadFile(filepath.Join(c.Dir(), "7.html"))
		if err != nil {
			t.Fatalf("read file: %v", err)
		}
		if !bytes.Equal(onDisk, content) {
			t.Fatalf("file content = %q, want %q", onDisk, content)
		}
	}
}

func TestWriteOverwrites(t *testing.T) {
	c := newTestCache(t, 4)

	if err := c.Write(2, []byte("first version of the page")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := c.Read(2); err != nil {
		t.Fatalf("warm read: %v", err)
	}
	if err := c.Write(2, []byte("second")); err != nil {
		t.Fatalf("second write: %v", err)
	}

	got, err := c.Read(2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("read = %q, want %q", got, "second")
	}

	entries, err := os.ReadDir(c.Dir())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("cache dir has %d entries, want 1", len(entries))
	}
}

func TestWriteRejectsInvalidUTF8(t *testing.T) {
	c := newTestCache(t, 0)
	if err := c.Write(0, []byte{0xff, 0xfe, 0x00}); !errors.Is(err, ErrNotUTF8) {
		t.Fatalf("expected ErrNotUTF8, got %v", err)
	}
	if has, _ := c.Has(0); has {
		t.Fatalf("rejected page must not be cached")
	}
}

func TestReadMissing(t *testing.T) {
	c := newTestCache(t, 2)
	if _, err := c.Read(3); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestHas(t *testing.T) {
	c := newTestCache(t, 0)
	touch(t, c.Dir(), "5.html")

	if has, err := c.Has(5); err != nil || !has {
		t.Fatalf("Has(5) = %v, %v; want true, nil", has, err)
	}
	if has, err := c.Has(6); err != nil || has {
		t.Fatalf("Has(6) = %v, %v; want false, nil", has, err)
	}
}
