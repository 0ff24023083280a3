package session

import (
	"context"
	"slices"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/hbomb79/Marquee/internal/media"
)

// genreMatchThreshold is the minimum similarity a genre name must have with
// a catalog genre before it is considered a match.
const genreMatchThreshold = 0.85

// FetchTrending requests this week's trending movies. Every call issues a
// fresh request; on success the held list is replaced, on failure the
// previous list is kept and the error recorded.
func (s *Store) FetchTrending(ctx context.Context) Snapshot {
	s.beginOperation(trendingOp)

	movies, err := s.catalog.FetchTrending(ctx)
	return s.transition(func() bool {
		s.loading[trendingOp]--
		if err != nil {
			log.Warnf("Failed to fetch trending movies: %v\n", err)
			s.err = userFacingMessage(err, trendingFailedMessage)
			return true
		}

		s.trending = slices.Clone(movies)
		return true
	})
}

// GetMovieDetails fetches the detail record for the movie. On failure the
// reason is recorded in the store's error field and also returned as a
// *CatalogError, so callers need not consult the shared snapshot.
func (s *Store) GetMovieDetails(ctx context.Context, movieID string) (*media.MovieDetails, error) {
	s.beginOperation(detailsOp)

	details, err := s.catalog.FetchMovieDetails(ctx, movieID)
	var failure *CatalogError
	s.transition(func() bool {
		s.loading[detailsOp]--
		if err != nil {
			log.Warnf("Failed to fetch details for movie %s: %v\n", movieID, err)
			failure = &CatalogError{Message: userFacingMessage(err, detailsFailedMessage), Err: err}
			s.err = failure.Message
		}
		return true
	})

	if failure != nil {
		return nil, failure
	}

	return details, nil
}

// GetRecommendations fetches the movies recommended alongside the movie
// provided, following the same policy as GetMovieDetails.
func (s *Store) GetRecommendations(ctx context.Context, movieID string) ([]media.Movie, error) {
	s.beginOperation(recommendationsOp)

	movies, err := s.catalog.FetchRecommendations(ctx, movieID)
	var failure *CatalogError
	s.transition(func() bool {
		s.loading[recommendationsOp]--
		if err != nil {
			log.Warnf("Failed to fetch recommendations for movie %s: %v\n", movieID, err)
			failure = &CatalogError{Message: userFacingMessage(err, recommendationsFailedMessage), Err: err}
			s.err = failure.Message
		}
		return true
	})

	if failure != nil {
		return nil, failure
	}

	if movies == nil {
		movies = []media.Movie{}
	}
	return movies, nil
}

// Genres returns the catalog's genre taxonomy. The taxonomy is fetched
// once and cached for the lifetime of the store; concurrent callers share
// a single request. A failure is recorded in the store's error field and
// returned as a *CatalogError; the next call tries again.
func (s *Store) Genres(ctx context.Context) ([]media.Genre, error) {
	s.mu.Lock()
	if s.genres != nil {
		defer s.mu.Unlock()
		return slices.Clone(s.genres), nil
	}
	s.mu.Unlock()

	result, err, shared := s.genreGroup.Do("genres", func() (any, error) {
		s.mu.Lock()
		if s.genres != nil {
			defer s.mu.Unlock()
			return slices.Clone(s.genres), nil
		}
		s.mu.Unlock()

		s.beginOperation(genresOp)

		genres, err := s.catalog.FetchGenres(ctx)
		var failure *CatalogError
		s.transition(func() bool {
			s.loading[genresOp]--
			if err != nil {
				log.Warnf("Failed to fetch genres: %v\n", err)
				failure = &CatalogError{Message: userFacingMessage(err, genresFailedMessage), Err: err}
				s.err = failure.Message
				return true
			}

			s.genres = slices.Clone(genres)
			if s.genres == nil {
				s.genres = []media.Genre{}
			}
			return true
		})

		if failure != nil {
			return nil, failure
		}
		return genres, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		log.Verbosef("Genre request was shared between concurrent callers\n")
	}

	genres := slices.Clone(result.([]media.Genre))
	if genres == nil {
		genres = []media.Genre{}
	}
	return genres, nil
}

// ResolveGenres maps human readable genre names to their catalog IDs. Names
// are matched case-insensitively, falling back to the closest fuzzy match
// so that small typos ("Comdy") still resolve. Names which do not
// resolve to any genre are returned separately. When the taxonomy itself
// cannot be fetched, no name is judged and the Genres error is returned.
func (s *Store) ResolveGenres(ctx context.Context, names []string) ([]int, []string, error) {
	genres, err := s.Genres(ctx)
	if err != nil {
		return nil, nil, err
	}

	metric := metrics.NewJaroWinkler()
	metric.CaseSensitive = false

	ids := make([]int, 0, len(names))
	unresolved := make([]string, 0)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		best, bestScore := -1, 0.0
		for _, genre := range genres {
			if strings.EqualFold(genre.Name, name) {
				best, bestScore = genre.ID, 1
				break
			}

			if score := strutil.Similarity(name, genre.Name, metric); score > bestScore {
				best, bestScore = genre.ID, score
			}
		}

		if best == -1 || bestScore < genreMatchThreshold {
			unresolved = append(unresolved, name)
			continue
		}

		ids = append(ids, best)
	}

	return ids, unresolved, nil
}

// beginOperation marks the operation as in flight and clears the previous
// error, as each user initiated operation does.
func (s *Store) beginOperation(op operation) {
	s.transition(func() bool {
		s.loading[op]++
		s.err = ""
		return true
	})
}
