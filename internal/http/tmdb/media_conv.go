package tmdb

import (
	"github.com/hbomb79/Marquee/internal/media"
)

type (
	// rawMovie is a movie record exactly as TMDB sends it. Fields which TMDB
	// may omit are pointers so that absence can be told apart from zero.
	rawMovie struct {
		ID          int     `json:"id"`
		Title       string  `json:"title"`
		PosterPath  *string `json:"poster_path"`
		ReleaseDate *string `json:"release_date"`
		VoteAverage float64 `json:"vote_average"`
		Overview    string  `json:"overview"`
		GenreIDs    []int   `json:"genre_ids"`
	}

	rawMovieDetails struct {
		rawMovie
		Genres              []media.Genre             `json:"genres"`
		Runtime             *int                      `json:"runtime"`
		Tagline             string                    `json:"tagline"`
		BackdropPath        *string                   `json:"backdrop_path"`
		Budget              int64                     `json:"budget"`
		Revenue             int64                     `json:"revenue"`
		Status              string                    `json:"status"`
		ProductionCompanies []media.ProductionCompany `json:"production_companies"`
		Videos              *media.Videos             `json:"videos"`
		Credits             *media.Credits            `json:"credits"`
	}
)

// TmdbMovieToMedia normalizes a raw TMDB movie record. A missing (or blank)
// release date is replaced by media.UnknownReleaseDate, and missing genre IDs
// become an empty slice. Every other field passes through untouched.
func TmdbMovieToMedia(movie rawMovie) media.Movie {
	releaseDate := media.UnknownReleaseDate
	if movie.ReleaseDate != nil && *movie.ReleaseDate != "" {
		releaseDate = *movie.ReleaseDate
	}

	genreIDs := movie.GenreIDs
	if genreIDs == nil {
		genreIDs = []int{}
	}

	return media.Movie{
		ID:          movie.ID,
		Title:       movie.Title,
		PosterPath:  movie.PosterPath,
		ReleaseDate: releaseDate,
		VoteAverage: movie.VoteAverage,
		Overview:    movie.Overview,
		GenreIDs:    genreIDs,
	}
}

func TmdbMoviesToMedia(movies []rawMovie) []media.Movie {
	out := make([]media.Movie, len(movies))
	for k, v := range movies {
		out[k] = TmdbMovieToMedia(v)
	}

	return out
}

func TmdbDetailsToMedia(details *rawMovieDetails) *media.MovieDetails {
	runtime := 0
	if details.Runtime != nil {
		runtime = *details.Runtime
	}

	genres := details.Genres
	if genres == nil {
		genres = []media.Genre{}
	}

	return &media.MovieDetails{
		Movie:               TmdbMovieToMedia(details.rawMovie),
		Genres:              genres,
		Runtime:             runtime,
		Tagline:             details.Tagline,
		BackdropPath:        details.BackdropPath,
		Budget:              details.Budget,
		Revenue:             details.Revenue,
		Status:              details.Status,
		ProductionCompanies: details.ProductionCompanies,
		Videos:              details.Videos,
		Credits:             details.Credits,
	}
}
