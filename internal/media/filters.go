package media

import (
	"slices"
	"strconv"
	"strings"
)

// Filters constrain a movie search. The zero value of each field means
// "unconstrained": an empty genre set, a zero year or a zero minimum rating
// never filter anything out.
type Filters struct {
	Genres    []int   `json:"genres,omitempty" validate:"omitempty,dive,gt=0"`
	Year      int     `json:"year,omitempty" validate:"omitempty,gte=1874,lte=2100"`
	MinRating float64 `json:"minRating,omitempty" validate:"omitempty,gte=0,lte=10"`
}

// Normalize returns a copy of the filters in canonical form: genre ids
// are de-duplicated and sorted, non-positive genre ids are dropped and
// negative years/ratings collapse to unconstrained. Two filters which
// constrain a search identically normalize to Equal values.
func (f Filters) Normalize() Filters {
	out := Filters{Year: f.Year, MinRating: f.MinRating}
	if out.Year < 0 {
		out.Year = 0
	}
	if out.MinRating < 0 {
		out.MinRating = 0
	}

	if len(f.Genres) > 0 {
		genres := make([]int, 0, len(f.Genres))
		for _, g := range f.Genres {
			if g > 0 {
				genres = append(genres, g)
			}
		}
		slices.Sort(genres)
		genres = slices.Compact(genres)
		if len(genres) > 0 {
			out.Genres = genres
		}
	}

	return out
}

// Equal reports whether the two filters impose the same constraints.
func (f Filters) Equal(other Filters) bool {
	a, b := f.Normalize(), other.Normalize()
	return a.Year == b.Year && a.MinRating == b.MinRating && slices.Equal(a.Genres, b.Genres)
}

// IsEmpty reports whether the filters impose no constraints at all.
func (f Filters) IsEmpty() bool {
	n := f.Normalize()
	return len(n.Genres) == 0 && n.Year == 0 && n.MinRating == 0
}

// GenreList returns the genre ids joined by commas, as expected by
// the catalog 'with_genres' parameter.
func (f Filters) GenreList() string {
	n := f.Normalize()
	ids := make([]string, len(n.Genres))
	for i, g := range n.Genres {
		ids[i] = strconv.Itoa(g)
	}

	return strings.Join(ids, ",")
}

// ActiveCount is the number of individual constraints in effect, with
// each selected genre counting once.
func (f Filters) ActiveCount() int {
	n := f.Normalize()
	count := len(n.Genres)
	if n.Year != 0 {
		count++
	}
	if n.MinRating != 0 {
		count++
	}

	return count
}
