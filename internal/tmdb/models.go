// Kinograph - Movie Similarity Search and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kinograph

package tmdb

// Movie is one catalog item as returned by TMDB. Listing endpoints
// (discover, search) populate GenreIDs; the detail endpoint populates
// Genres instead. Everything else passes through to API responses and the
// metadata artifact verbatim.
type Movie struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	OriginalTitle    string  `json:"original_title,omitempty"`
	OriginalLanguage string  `json:"original_language"`
	Overview         string  `json:"overview,omitempty"`
	ReleaseDate      string  `json:"release_date,omitempty"`
	GenreIDs         []int   `json:"genre_ids,omitempty"`
	Genres           []Genre `json:"genres,omitempty"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count,omitempty"`
	Popularity       float64 `json:"popularity"`
	PosterPath       string  `json:"poster_path,omitempty"`
	BackdropPath     string  `json:"backdrop_path,omitempty"`
	Adult            bool    `json:"adult,omitempty"`
	Video            bool    `json:"video,omitempty"`
}

// Genre is a TMDB genre record from the detail endpoint.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// CategoryIDs returns the movie's genre IDs regardless of which endpoint
// shape populated the record.
func (m *Movie) CategoryIDs() []int {
	if len(m.GenreIDs) > 0 {
		return m.GenreIDs
	}
	if len(m.Genres) == 0 {
		return nil
	}
	ids := make([]int, len(m.Genres))
	for i, g := range m.Genres {
		ids[i] = g.ID
	}
	return ids
}

// Page is one page of a paginated listing response (discover or search).
type Page struct {
	Page         int     `json:"page"`
	Results      []Movie `json:"results"`
	TotalPages   int     `json:"total_pages"`
	TotalResults int     `json:"total_results"`
}
