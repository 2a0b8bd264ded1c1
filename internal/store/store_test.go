package store

import (
	"path/filepath"
	"testing"

	"github.com/codeandkey/mii/internal/analyze"
	"github.com/codeandkey/mii/internal/crawl"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	if err := Init(path); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCompareNewModuleIsStale(t *testing.T) {
	s := openTestStore(t)

	stale, err := s.Compare([]crawl.File{{Path: "/m/foo", Code: "foo", Hash: 1}}, 42)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("got %d stale, want 1 for a never-seen module", len(stale))
	}
}

func TestCompareUpToDateModuleIsNotStale(t *testing.T) {
	s := openTestStore(t)

	info := analyze.Info{File: crawl.File{Path: "/m/foo", Code: "foo", Hash: 1}, Bins: []string{"foo"}}
	if err := s.UpsertBulk([]analyze.Info{info}, 1); err != nil {
		t.Fatalf("UpsertBulk() error = %v", err)
	}

	stale, err := s.Compare([]crawl.File{{Path: "/m/foo", Code: "foo", Hash: 1}}, 2)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("got %d stale, want 0 for an unchanged module", len(stale))
	}
}

func TestCompareChangedHashIsStale(t *testing.T) {
	s := openTestStore(t)

	info := analyze.Info{File: crawl.File{Path: "/m/foo", Code: "foo", Hash: 1}, Bins: []string{"foo"}}
	if err := s.UpsertBulk([]analyze.Info{info}, 1); err != nil {
		t.Fatalf("UpsertBulk() error = %v", err)
	}

	stale, err := s.Compare([]crawl.File{{Path: "/m/foo", Code: "foo", Hash: 2}}, 2)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("got %d stale, want 1 for a changed hash", len(stale))
	}
}

func TestFlushOrphansRemovesUnstampedRows(t *testing.T) {
	s := openTestStore(t)

	a := analyze.Info{File: crawl.File{Path: "/m/a", Code: "a", Hash: 1}, Bins: []string{"a"}}
	b := analyze.Info{File: crawl.File{Path: "/m/b", Code: "b", Hash: 1}, Bins: []string{"b"}}
	if err := s.UpsertBulk([]analyze.Info{a}, 1); err != nil {
		t.Fatalf("UpsertBulk() error = %v", err)
	}
	if err := s.UpsertBulk([]analyze.Info{b}, 2); err != nil {
		t.Fatalf("UpsertBulk() error = %v", err)
	}

	removed, err := s.FlushOrphans(2)
	if err != nil {
		t.Fatalf("FlushOrphans() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d rows, want 1", removed)
	}

	results, err := s.SearchExact("a")
	if err != nil {
		t.Fatalf("SearchExact() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("got %d results for orphaned bin, want 0", len(results))
	}
}

func TestSearchExactRequiresExactElement(t *testing.T) {
	s := openTestStore(t)

	info := analyze.Info{
		File: crawl.File{Path: "/m/gcc", Code: "gcc/9.1", Hash: 1},
		Bins: []string{"gcc", "g++", "gfortran"},
	}
	if err := s.UpsertBulk([]analyze.Info{info}, 1); err != nil {
		t.Fatalf("UpsertBulk() error = %v", err)
	}

	results, err := s.SearchExact("gc")
	if err != nil {
		t.Fatalf("SearchExact() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("got %d results for non-exact substring, want 0", len(results))
	}

	results, err = s.SearchExact("gcc")
	if err != nil {
		t.Fatalf("SearchExact() error = %v", err)
	}
	if len(results) != 1 || results[0].Code != "gcc/9.1" {
		t.Fatalf("got %+v, want one result for gcc/9.1", results)
	}
}

func TestSearchFuzzyMatchesSubstrings(t *testing.T) {
	s := openTestStore(t)

	info := analyze.Info{
		File: crawl.File{Path: "/m/gcc", Code: "gcc/9.1", Hash: 1},
		Bins: []string{"gcc", "g++", "gfortran"},
	}
	if err := s.UpsertBulk([]analyze.Info{info}, 1); err != nil {
		t.Fatalf("UpsertBulk() error = %v", err)
	}

	results, err := s.SearchFuzzy("gc")
	if err != nil {
		t.Fatalf("SearchFuzzy() error = %v", err)
	}

	got := map[string]bool{}
	for _, r := range results {
		got[r.Command] = true
	}
	if len(got) != 2 || !got["gcc"] || !got["gfortran"] {
		t.Fatalf("got %v, want exactly {gcc, gfortran}", got)
	}
}

func TestPurgeClearsIndex(t *testing.T) {
	s := openTestStore(t)

	info := analyze.Info{File: crawl.File{Path: "/m/foo", Code: "foo", Hash: 1}, Bins: []string{"foo"}}
	if err := s.UpsertBulk([]analyze.Info{info}, 1); err != nil {
		t.Fatalf("UpsertBulk() error = %v", err)
	}
	if err := s.Purge(); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}

	results, err := s.SearchExact("foo")
	if err != nil {
		t.Fatalf("SearchExact() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("got %d results after purge, want 0", len(results))
	}
}
