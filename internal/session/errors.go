package session

import (
	"errors"

	"github.com/hbomb79/Marquee/internal/http/tmdb"
)

const (
	searchFailedMessage          = "Failed to search movies"
	loadMoreFailedMessage        = "Failed to load more movies"
	trendingFailedMessage        = "Failed to fetch trending movies"
	detailsFailedMessage         = "Failed to fetch movie details"
	recommendationsFailedMessage = "Failed to fetch recommendations"
	genresFailedMessage          = "Failed to fetch genres"
	persistFailedMessage         = "Failed to save your changes"
	NotFoundMessage              = "Movie not found"
)

// userFacingMessage converts a catalog failure in to the text shown to the
// user. The catalog's own message is preferred where one was reported,
// otherwise the fallback describing the failed operation is used.
func userFacingMessage(err error, fallback string) string {
	var notFound *tmdb.NotFoundError
	if errors.As(err, &notFound) {
		return NotFoundMessage
	}

	var upstream *tmdb.UpstreamError
	if errors.As(err, &upstream) && upstream.Message != "" {
		return upstream.Message
	}

	return fallback
}

// CatalogError is returned by the store operations which hand catalog data
// straight to their caller. Message matches the text recorded in the
// snapshot's error field when the failure occurred.
type CatalogError struct {
	Message string
	Err     error
}

func (err *CatalogError) Error() string { return err.Message }
func (err *CatalogError) Unwrap() error { return err.Err }

// IsNotFound reports whether err was caused by the catalog not knowing
// the requested movie.
func IsNotFound(err error) bool {
	var notFound *tmdb.NotFoundError
	return errors.As(err, &notFound)
}
