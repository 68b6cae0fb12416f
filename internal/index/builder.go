// Kinograph - Movie Similarity Search and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kinograph

/*
builder.go - Index Build Pipeline and Artifacts

Turns a crawled movie list into the three persisted artifacts the server
loads at startup:

  - movie_index.kin      the nearest-neighbor index
  - movie_id_map.json    bijection between TMDB IDs and internal positions
  - movie_metadata.json  retained movie records in vectorization order

The ID map's two object fields use string keys and string values on both
sides. Internal positions are assigned by the order movies survive
vectorization, so the metadata array is position-addressable: element i
describes the item at internal position i.
*/

//nolint:staticcheck // File documentation, not package doc
package index

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/kinograph/internal/config"
	"github.com/tomtom215/kinograph/internal/logging"
	"github.com/tomtom215/kinograph/internal/metrics"
	"github.com/tomtom215/kinograph/internal/tmdb"
	"github.com/tomtom215/kinograph/internal/vectorize"
)

// Artifact file names within the index directory.
const (
	IndexFileName    = "movie_index.kin"
	IDMapFileName    = "movie_id_map.json"
	MetadataFileName = "movie_metadata.json"
)

// IDMap is the persisted bijection between external TMDB IDs and dense
// internal positions. Both directions are stored explicitly with string
// keys and values.
type IDMap struct {
	TmdbToIndex map[string]string `json:"tmdb_to_index"`
	IndexToTmdb map[string]string `json:"index_to_tmdb"`
}

// NewIDMap assigns positions 0..N-1 to movies in slice order.
func NewIDMap(movies []tmdb.Movie) *IDMap {
	m := &IDMap{
		TmdbToIndex: make(map[string]string, len(movies)),
		IndexToTmdb: make(map[string]string, len(movies)),
	}
	for i, movie := range movies {
		id := strconv.FormatInt(movie.ID, 10)
		pos := strconv.Itoa(i)
		m.TmdbToIndex[id] = pos
		m.IndexToTmdb[pos] = id
	}
	return m
}

// PositionFor resolves a TMDB ID to its internal position.
func (m *IDMap) PositionFor(tmdbID int64) (int, bool) {
	pos, ok := m.TmdbToIndex[strconv.FormatInt(tmdbID, 10)]
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(pos)
	if err != nil {
		return 0, false
	}
	return i, true
}

// TMDBIDFor resolves an internal position to its TMDB ID.
func (m *IDMap) TMDBIDFor(position int) (int64, bool) {
	id, ok := m.IndexToTmdb[strconv.Itoa(position)]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Len returns the number of mapped items.
func (m *IDMap) Len() int {
	return len(m.TmdbToIndex)
}

// validate checks the bijection: both directions equal in size, each
// entry's inverse present.
func (m *IDMap) validate() error {
	if len(m.TmdbToIndex) != len(m.IndexToTmdb) {
		return fmt.Errorf("id map directions disagree: %d forward, %d reverse",
			len(m.TmdbToIndex), len(m.IndexToTmdb))
	}
	for id, pos := range m.TmdbToIndex {
		if back, ok := m.IndexToTmdb[pos]; !ok || back != id {
			return fmt.Errorf("id map not bijective at id %s position %s", id, pos)
		}
	}
	return nil
}

// BuildResult summarizes a completed index build.
type BuildResult struct {
	Items    int
	Excluded int
	Trees    int
	Dir      string
}

// Build vectorizes movies, builds the index, and writes all three
// artifacts into cfg.Dir. Zero vectorizable movies is a fatal input
// error, not an empty index.
func Build(movies []tmdb.Movie, cfg *config.IndexConfig) (*BuildResult, error) {
	metric, err := ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}

	matrix, retained, err := vectorize.BuildMatrix(movies)
	if err != nil {
		return nil, fmt.Errorf("vectorize: %w", err)
	}

	idx := NewForMetric(metric)
	for i, v := range matrix {
		if err := idx.AddItem(i, v); err != nil {
			return nil, fmt.Errorf("add item %d: %w", i, err)
		}
	}
	if err := idx.Build(cfg.Trees, cfg.Jobs); err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	idMap := NewIDMap(retained)
	if err := idMap.validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	if err := idx.Save(filepath.Join(cfg.Dir, IndexFileName)); err != nil {
		return nil, err
	}
	if err := writeJSON(filepath.Join(cfg.Dir, IDMapFileName), idMap); err != nil {
		return nil, err
	}
	if err := writeJSON(filepath.Join(cfg.Dir, MetadataFileName), retained); err != nil {
		return nil, err
	}

	res := &BuildResult{
		Items:    len(retained),
		Excluded: len(movies) - len(retained),
		Trees:    cfg.Trees,
		Dir:      cfg.Dir,
	}
	logging.Info().
		Int("items", res.Items).
		Int("excluded", res.Excluded).
		Int("trees", res.Trees).
		Str("metric", cfg.Metric).
		Str("dir", res.Dir).
		Msg("index build complete")
	return res, nil
}

// Artifacts is a loaded, query-ready index bundle.
type Artifacts struct {
	Index    NNIndex
	IDMap    *IDMap
	Metadata []tmdb.Movie // position-addressable, vectorization order
}

// MovieAt returns the metadata record for an internal position.
func (a *Artifacts) MovieAt(position int) (tmdb.Movie, bool) {
	if position < 0 || position >= len(a.Metadata) {
		return tmdb.Movie{}, false
	}
	return a.Metadata[position], true
}

// LoadArtifacts reads all three artifacts from cfg.Dir and cross-checks
// them: the ID map must be bijective and its size must match both the
// index and the metadata array.
func LoadArtifacts(cfg *config.IndexConfig) (*Artifacts, error) {
	metric, err := ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}

	idx := NewForMetric(metric)
	if err := idx.Load(filepath.Join(cfg.Dir, IndexFileName)); err != nil {
		return nil, err
	}

	var idMap IDMap
	if err := readJSON(filepath.Join(cfg.Dir, IDMapFileName), &idMap); err != nil {
		return nil, err
	}
	if err := idMap.validate(); err != nil {
		return nil, err
	}

	var metadata []tmdb.Movie
	if err := readJSON(filepath.Join(cfg.Dir, MetadataFileName), &metadata); err != nil {
		return nil, err
	}

	if idMap.Len() != idx.NItems() || idMap.Len() != len(metadata) {
		return nil, fmt.Errorf("artifact sizes disagree: index %d, id map %d, metadata %d",
			idx.NItems(), idMap.Len(), len(metadata))
	}

	metrics.IndexItems.Set(float64(idx.NItems()))
	metrics.IndexLoaded.Set(1)
	logging.Info().
		Int("items", idx.NItems()).
		Int("trees", idx.NTrees()).
		Str("metric", cfg.Metric).
		Str("dir", cfg.Dir).
		Msg("index artifacts loaded")

	return &Artifacts{Index: idx, IDMap: &idMap, Metadata: metadata}, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // artifacts are not sensitive
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
