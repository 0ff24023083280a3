package media_test

import (
	"testing"

	"github.com/hbomb79/Marquee/internal/media"
	"github.com/stretchr/testify/assert"
)

func Test_Filters_Normalize(t *testing.T) {
	tests := []struct {
		summary  string
		input    media.Filters
		expected media.Filters
	}{
		{"zero value stays unconstrained", media.Filters{}, media.Filters{}},
		{"empty genre slice collapses to nil", media.Filters{Genres: []int{}}, media.Filters{}},
		{"genres sorted and de-duplicated", media.Filters{Genres: []int{28, 12, 28, 16}}, media.Filters{Genres: []int{12, 16, 28}}},
		{"non-positive genres dropped", media.Filters{Genres: []int{0, -3}}, media.Filters{}},
		{"negative year and rating unconstrained", media.Filters{Year: -1, MinRating: -2}, media.Filters{}},
		{"year and rating preserved", media.Filters{Year: 1999, MinRating: 7.5}, media.Filters{Year: 1999, MinRating: 7.5}},
	}

	for _, tt := range tests {
		t.Run(tt.summary, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.input.Normalize())
		})
	}
}

func Test_Filters_Equal(t *testing.T) {
	assert.True(t, media.Filters{}.Equal(media.Filters{Genres: []int{}}))
	assert.True(t, media.Filters{Genres: []int{2, 1}}.Equal(media.Filters{Genres: []int{1, 2, 2}}))
	assert.False(t, media.Filters{Year: 2000}.Equal(media.Filters{Year: 2001}))
	assert.False(t, media.Filters{MinRating: 5}.Equal(media.Filters{}))
	assert.False(t, media.Filters{Genres: []int{1}}.Equal(media.Filters{Genres: []int{1, 2}}))
}

func Test_Filters_GenreListAndCount(t *testing.T) {
	f := media.Filters{Genres: []int{35, 18}, Year: 2010}
	assert.Equal(t, "18,35", f.GenreList())
	assert.Equal(t, 3, f.ActiveCount())
	assert.False(t, f.IsEmpty())

	assert.Equal(t, "", media.Filters{}.GenreList())
	assert.True(t, media.Filters{Genres: []int{0}}.IsEmpty())
}

func Test_MovieDetails_TrailerAndDirectors(t *testing.T) {
	details := &media.MovieDetails{
		Videos: &media.Videos{Results: []media.Video{
			{ID: "a", Key: "teaser", Site: "YouTube", Type: "Teaser"},
			{ID: "b", Key: "trailer", Site: "YouTube", Type: "Trailer"},
		}},
		Credits: &media.Credits{Crew: []media.CrewMember{
			{ID: 1, Name: "Jane Doe", Job: "Director"},
			{ID: 2, Name: "John Roe", Job: "Producer"},
		}},
	}

	trailer := details.Trailer()
	if assert.NotNil(t, trailer) {
		assert.Equal(t, "trailer", trailer.Key)
	}
	assert.Equal(t, []string{"Jane Doe"}, details.Directors())

	empty := &media.MovieDetails{}
	assert.Nil(t, empty.Trailer())
	assert.Nil(t, empty.Directors())
}
