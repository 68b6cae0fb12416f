// Kinograph - Movie Similarity Search and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kinograph

// Package vectorize maps raw movie records to fixed-length multi-hot
// feature vectors.
//
// The vector layout is frozen: 19 genre flags in vocabulary order, one
// popularity flag, then 4 language flags. A movie with no recognized
// genre carries no categorical signal and is excluded from the matrix
// rather than producing a zero vector. Vectorization is pure and
// deterministic; the same movie always yields the same vector.
package vectorize

import (
	"errors"

	"github.com/tomtom215/kinograph/internal/tmdb"
)

// Dimensions is the frozen vector length: 19 genres + popularity + 4
// language flags. Changing the layout invalidates every persisted index.
const Dimensions = 24

// PopularityThreshold is the vote average at or above which the
// popularity flag is set. The flag is a derived boolean; the raw score
// never enters the vector.
const PopularityThreshold = 8.0

// genreVocabulary lists the TMDB genre IDs the vectorizer recognizes, in
// the order their flags appear in the vector.
var genreVocabulary = []int{
	28,    // Action
	12,    // Adventure
	16,    // Animation
	35,    // Comedy
	80,    // Crime
	99,    // Documentary
	18,    // Drama
	10751, // Family
	14,    // Fantasy
	36,    // History
	27,    // Horror
	10402, // Music
	9648,  // Mystery
	10749, // Romance
	878,   // Science Fiction
	10770, // TV Movie
	53,    // Thriller
	10752, // War
	37,    // Western
}

// languageFlags lists the ISO 639-1 codes with a dedicated vector
// dimension, in flag order. Movies in any other language get none of
// these flags, which is valid, not a discard condition.
var languageFlags = []string{"ta", "ml", "hi", "en"}

var genrePosition = func() map[int]int {
	m := make(map[int]int, len(genreVocabulary))
	for i, id := range genreVocabulary {
		m[id] = i
	}
	return m
}()

var languagePosition = func() map[string]int {
	m := make(map[string]int, len(languageFlags))
	for i, code := range languageFlags {
		m[code] = len(genreVocabulary) + 1 + i
	}
	return m
}()

// ErrNoVectorizable is returned by BuildMatrix when zero input items
// survive filtering. An empty index is a configuration error, never a
// valid build output.
var ErrNoVectorizable = errors.New("no vectorizable items in input")

// Vectorize maps one movie to its feature vector. It returns false when
// the movie has no recognized genre, in which case no vector exists for
// it and it must not enter the matrix.
func Vectorize(m tmdb.Movie) ([]float32, bool) {
	ids := m.CategoryIDs()
	recognized := false
	for _, id := range ids {
		if _, ok := genrePosition[id]; ok {
			recognized = true
			break
		}
	}
	if !recognized {
		return nil, false
	}

	v := make([]float32, Dimensions)
	for _, id := range ids {
		if pos, ok := genrePosition[id]; ok {
			v[pos] = 1
		}
	}
	if m.VoteAverage >= PopularityThreshold {
		v[len(genreVocabulary)] = 1
	}
	if pos, ok := languagePosition[m.OriginalLanguage]; ok {
		v[pos] = 1
	}
	return v, true
}

// BuildMatrix vectorizes a batch of movies, returning the matrix and the
// parallel slice of movies that survived, in input order. Row i of the
// matrix belongs to retained[i].
func BuildMatrix(movies []tmdb.Movie) ([][]float32, []tmdb.Movie, error) {
	matrix := make([][]float32, 0, len(movies))
	retained := make([]tmdb.Movie, 0, len(movies))

	for _, m := range movies {
		v, ok := Vectorize(m)
		if !ok {
			continue
		}
		matrix = append(matrix, v)
		retained = append(retained, m)
	}

	if len(matrix) == 0 {
		return nil, nil, ErrNoVectorizable
	}
	return matrix, retained, nil
}
