// Kinograph - Movie Similarity Search and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kinograph

// Package index provides the nearest-neighbor index capability behind
// recommendation serving.
//
// Callers program against NNIndex and never inspect index internals; the
// flat exact-scan backend here is the reference implementation, correct
// at catalog scale and trivially swappable for an approximate backend
// behind the same interface.
package index

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/goccy/go-json"
)

// NNIndex is the nearest-neighbor index capability. Positions are the
// dense internal indices assigned at build time (0..N-1); translation to
// external IDs is the caller's concern.
type NNIndex interface {
	// AddItem registers vector at position. Positions must be added in
	// order with no gaps, before Build.
	AddItem(position int, vector []float32) error

	// Build finalizes the index. trees and jobs tune backends that use
	// them; the index answers no queries before Build.
	Build(trees, jobs int) error

	// Save persists the built index to path.
	Save(path string) error

	// Load replaces the index contents with a previously saved artifact.
	// A loaded index is ready to query.
	Load(path string) error

	// GetNNsByItem returns the count nearest positions to the item at
	// position, nearest first, together with their distances. The item
	// itself appears in its own neighbor list at distance zero.
	GetNNsByItem(position, count int) ([]int, []float32, error)

	// NItems returns the number of indexed vectors.
	NItems() int

	// NTrees returns the tree count recorded at build time.
	NTrees() int
}

var (
	// ErrNotBuilt is returned when querying or saving an index that has
	// not been built or loaded.
	ErrNotBuilt = errors.New("index not built")

	// ErrBuilt is returned when adding items after Build.
	ErrBuilt = errors.New("index already built")
)

// FlatIndex is an exact-scan NNIndex: queries compare the source vector
// against every indexed vector. No approximation, no tree structure; the
// trees parameter is recorded for reporting only.
type FlatIndex struct {
	mu      sync.RWMutex
	metric  Metric
	dims    int
	vectors [][]float32
	trees   int
	built   bool
}

// New creates an empty FlatIndex for the given metric.
func New(metric Metric) *FlatIndex {
	return &FlatIndex{metric: metric}
}

// Per-variant constructors. Configuration strings resolve through
// ParseMetric first, so an unknown name never reaches this layer.

// NewAngular creates an index using chord distance on the unit sphere.
func NewAngular() *FlatIndex { return New(MetricAngular) }

// NewEuclidean creates an index using straight-line distance.
func NewEuclidean() *FlatIndex { return New(MetricEuclidean) }

// NewManhattan creates an index using taxicab distance.
func NewManhattan() *FlatIndex { return New(MetricManhattan) }

// NewDot creates an index ordering neighbors by descending dot product.
func NewDot() *FlatIndex { return New(MetricDot) }

// NewHamming creates an index counting differing dimensions.
func NewHamming() *FlatIndex { return New(MetricHamming) }

// NewForMetric dispatches to the variant constructor for metric.
func NewForMetric(metric Metric) *FlatIndex {
	switch metric {
	case MetricAngular:
		return NewAngular()
	case MetricEuclidean:
		return NewEuclidean()
	case MetricManhattan:
		return NewManhattan()
	case MetricDot:
		return NewDot()
	case MetricHamming:
		return NewHamming()
	default:
		return New(metric)
	}
}

// Metric returns the distance strategy the index was created with.
func (f *FlatIndex) Metric() Metric {
	return f.metric
}

// AddItem registers vector at position. See NNIndex.
func (f *FlatIndex) AddItem(position int, vector []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.built {
		return ErrBuilt
	}
	if position != len(f.vectors) {
		return fmt.Errorf("position %d out of order, next is %d", position, len(f.vectors))
	}
	if f.dims == 0 {
		if len(vector) == 0 {
			return errors.New("empty vector")
		}
		f.dims = len(vector)
	}
	if len(vector) != f.dims {
		return fmt.Errorf("vector length %d, index dimensionality is %d", len(vector), f.dims)
	}

	owned := make([]float32, len(vector))
	copy(owned, vector)
	f.vectors = append(f.vectors, owned)
	return nil
}

// Build finalizes the index. The exact scan has nothing to precompute;
// trees is recorded and jobs is ignored.
func (f *FlatIndex) Build(trees, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.built {
		return ErrBuilt
	}
	if len(f.vectors) == 0 {
		return errors.New("build with zero items")
	}
	f.trees = trees
	f.built = true
	return nil
}

// GetNNsByItem returns the count nearest positions to position. See
// NNIndex. Ties break toward the lower position so results are
// deterministic.
func (f *FlatIndex) GetNNsByItem(position, count int) ([]int, []float32, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.built {
		return nil, nil, ErrNotBuilt
	}
	if position < 0 || position >= len(f.vectors) {
		return nil, nil, fmt.Errorf("position %d outside [0, %d)", position, len(f.vectors))
	}
	if count <= 0 {
		return nil, nil, nil
	}
	if count > len(f.vectors) {
		count = len(f.vectors)
	}

	source := f.vectors[position]
	type scored struct {
		pos  int
		dist float32
	}
	all := make([]scored, len(f.vectors))
	for i, v := range f.vectors {
		all[i] = scored{pos: i, dist: f.metric.distance(source, v)}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].dist != all[j].dist {
			return all[i].dist < all[j].dist
		}
		return all[i].pos < all[j].pos
	})

	positions := make([]int, count)
	distances := make([]float32, count)
	for i := 0; i < count; i++ {
		positions[i] = all[i].pos
		distances[i] = all[i].dist
	}
	return positions, distances, nil
}

// NItems returns the number of indexed vectors.
func (f *FlatIndex) NItems() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// NTrees returns the tree count recorded at build time.
func (f *FlatIndex) NTrees() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.trees
}

// indexFile is the on-disk envelope for a saved index.
type indexFile struct {
	Metric     Metric      `json:"metric"`
	Dimensions int         `json:"dimensions"`
	Trees      int         `json:"trees"`
	Vectors    [][]float32 `json:"vectors"`
}

// Save persists the built index to path through a temp file and rename.
func (f *FlatIndex) Save(path string) error {
	f.mu.RLock()
	if !f.built {
		f.mu.RUnlock()
		return ErrNotBuilt
	}
	envelope := indexFile{
		Metric:     f.metric,
		Dimensions: f.dims,
		Trees:      f.trees,
		Vectors:    f.vectors,
	}
	data, err := json.Marshal(envelope)
	f.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // index is not sensitive
		return fmt.Errorf("write index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace index file: %w", err)
	}
	return nil
}

// Load replaces the index contents from a saved artifact. The artifact's
// metric must match the metric the index was created with; serving with
// a different distance strategy than the build used would silently
// change every neighbor list.
func (f *FlatIndex) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read index file: %w", err)
	}

	var envelope indexFile
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("parse index file: %w", err)
	}
	if envelope.Metric != f.metric {
		return fmt.Errorf("index metric %q, configured metric %q", envelope.Metric, f.metric)
	}
	if len(envelope.Vectors) == 0 {
		return errors.New("index file contains no vectors")
	}
	for i, v := range envelope.Vectors {
		if len(v) != envelope.Dimensions {
			return fmt.Errorf("vector %d has length %d, header says %d", i, len(v), envelope.Dimensions)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.dims = envelope.Dimensions
	f.trees = envelope.Trees
	f.vectors = envelope.Vectors
	f.built = true
	return nil
}
