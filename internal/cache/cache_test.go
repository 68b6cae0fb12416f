// Kinograph - Movie Similarity Search and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kinograph

package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tomtom215/kinograph/internal/tmdb"
)

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "missing.json"))
	c.Load()
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestLoadCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	c := New(path)
	c.Load()
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 for corrupt file", c.Len())
	}
}

func TestPutGetOverwrite(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "cache.json"))

	c.Put(42, tmdb.Movie{ID: 42, Title: "First"})
	got, ok := c.Get(42)
	if !ok || got.Title != "First" {
		t.Fatalf("Get(42) = %+v, %v", got, ok)
	}

	// Last write wins.
	c.Put(42, tmdb.Movie{ID: 42, Title: "Second"})
	got, _ = c.Get(42)
	if got.Title != "Second" {
		t.Errorf("Title = %q, want Second", got.Title)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}

	if _, ok := c.Get(7); ok {
		t.Error("Get(7) should miss")
	}
}

func TestFlushAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	c := New(path)
	c.Put(1, tmdb.Movie{ID: 1, Title: "One", VoteAverage: 7.5, GenreIDs: []int{28}})
	c.Put(2, tmdb.Movie{ID: 2, Title: "Two", OriginalLanguage: "ta"})
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	reloaded := New(path)
	reloaded.Load()
	if reloaded.Len() != 2 {
		t.Fatalf("reloaded Len() = %d, want 2", reloaded.Len())
	}
	one, ok := reloaded.Get(1)
	if !ok || one.Title != "One" || one.VoteAverage != 7.5 {
		t.Errorf("reloaded entry 1 = %+v, %v", one, ok)
	}
	two, _ := reloaded.Get(2)
	if two.OriginalLanguage != "ta" {
		t.Errorf("reloaded entry 2 language = %q, want ta", two.OriginalLanguage)
	}
}

func TestFlushOverwritesPreviousSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	c := New(path)
	c.Put(1, tmdb.Movie{ID: 1})
	if err := c.Flush(); err != nil {
		t.Fatal(err)
	}
	c.Put(2, tmdb.Movie{ID: 2})
	if err := c.Flush(); err != nil {
		t.Fatal(err)
	}

	reloaded := New(path)
	reloaded.Load()
	if reloaded.Len() != 2 {
		t.Errorf("reloaded Len() = %d, want 2", reloaded.Len())
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after flush")
	}
}

func TestFlushFailureReturnsError(t *testing.T) {
	// Point the cache at a directory that does not exist.
	c := New(filepath.Join(t.TempDir(), "nope", "cache.json"))
	c.Put(1, tmdb.Movie{ID: 1})
	if err := c.Flush(); err == nil {
		t.Error("expected flush error for unwritable path")
	}
}
