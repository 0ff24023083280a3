package session

import (
	"encoding/json"
	"slices"

	"github.com/hbomb79/Marquee/internal/media"
)

// AddToFavorites adds the movie to the favorites set and persists the set.
// Favorites are keyed on movie ID, so adding a movie which is already a
// favorite does nothing.
func (s *Store) AddToFavorites(movie media.Movie) Snapshot {
	return s.transition(func() bool {
		if _, exists := s.favoriteIndex[movie.ID]; exists {
			return false
		}

		s.err = ""
		s.favoriteIndex[movie.ID] = struct{}{}
		s.favorites = append(slices.Clip(s.favorites), movie)
		s.persistFavoritesLocked()
		return true
	})
}

// RemoveFromFavorites removes the movie with the ID provided from the
// favorites set, if present, and persists the set.
func (s *Store) RemoveFromFavorites(movieID int) Snapshot {
	return s.transition(func() bool {
		if _, exists := s.favoriteIndex[movieID]; !exists {
			return false
		}

		s.err = ""
		delete(s.favoriteIndex, movieID)
		s.favorites = slices.DeleteFunc(slices.Clone(s.favorites), func(m media.Movie) bool { return m.ID == movieID })
		s.persistFavoritesLocked()
		return true
	})
}

// ToggleFavorite removes the movie from the favorites if present, otherwise
// it is added.
func (s *Store) ToggleFavorite(movie media.Movie) Snapshot {
	if s.IsFavorite(movie.ID) {
		return s.RemoveFromFavorites(movie.ID)
	}

	return s.AddToFavorites(movie)
}

func (s *Store) IsFavorite(movieID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.favoriteIndex[movieID]
	return exists
}

func (s *Store) Favorites() []media.Movie {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.favorites)
}

func (s *Store) persistFavoritesLocked() {
	raw, err := json.Marshal(s.favorites)
	if err != nil {
		log.Errorf("Failed to marshal favorites: %v\n", err)
		s.err = persistFailedMessage
		return
	}

	s.persistLocked(FavoritesKey, string(raw))
}
