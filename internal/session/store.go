// Package session holds the Store, the single stateful coordinator of
// a Marquee session. It owns the trending list, the paginated search
// stream, the favorites set and the last search term, decides when the
// catalog is queried and how responses are merged, and writes the
// persisted slices of its state to durable storage.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"

	"github.com/hbomb79/Marquee/internal/event"
	"github.com/hbomb79/Marquee/internal/media"
	"github.com/hbomb79/Marquee/internal/storage"
	"github.com/hbomb79/Marquee/pkg/logger"
	"golang.org/x/sync/singleflight"
)

const (
	FavoritesKey  = "favorites"
	LastSearchKey = "lastSearch"
)

var log = logger.Get("Session")

type (
	// Catalog is the subset of the TMDB client the store drives. It is
	// expected to be stateless and safe for concurrent use.
	Catalog interface {
		FetchTrending(ctx context.Context) ([]media.Movie, error)
		SearchMovies(ctx context.Context, query string, page int, filters media.Filters) (*media.SearchPage, error)
		FetchMovieDetails(ctx context.Context, movieID string) (*media.MovieDetails, error)
		FetchRecommendations(ctx context.Context, movieID string) ([]media.Movie, error)
		FetchGenres(ctx context.Context) ([]media.Genre, error)
	}

	// Snapshot is an immutable view of the store, produced after every
	// transition. Version increases monotonically, so consumers can compare
	// two snapshots to decide whether anything changed.
	Snapshot struct {
		Version     uint64        `json:"version"`
		Trending    []media.Movie `json:"trending"`
		Search      SearchState   `json:"search"`
		Favorites   []media.Movie `json:"favorites"`
		LastSearch  string        `json:"lastSearch"`
		Genres      []media.Genre `json:"genres"`
		IsLoading   bool          `json:"isLoading"`
		Error       string        `json:"error,omitempty"`
		HasMore     bool          `json:"hasMore"`
		CurrentPage int           `json:"currentPage"`
	}

	// Store is the session coordinator. A Store must be constructed with New
	// and is safe for concurrent use: every transition happens under the
	// store's lock, which is released for the duration of catalog calls.
	Store struct {
		mu         sync.Mutex
		catalog    Catalog
		storage    storage.Storage
		dispatcher event.EventDispatcher

		trending      []media.Movie
		search        searchStream
		favorites     []media.Movie
		favoriteIndex map[int]struct{}
		lastSearch    string
		genres        []media.Genre
		loading       map[operation]int
		err           string

		version     uint64
		subscribers map[int]chan Snapshot
		nextSubID   int

		genreGroup singleflight.Group
	}

	operation int
)

const (
	trendingOp operation = iota
	detailsOp
	recommendationsOp
	genresOp
)

// New constructs a Store, restoring the favorites and last search term
// from the storage provided. Absent or corrupt entries are treated as
// empty and never cause construction to fail. The dispatcher is optional;
// when provided, a SESSION_UPDATE event is dispatched after each transition.
func New(ctx context.Context, catalog Catalog, store storage.Storage, dispatcher event.EventDispatcher) *Store {
	s := &Store{
		catalog:       catalog,
		storage:       store,
		dispatcher:    dispatcher,
		trending:      []media.Movie{},
		search:        newSearchStream(),
		favorites:     []media.Movie{},
		favoriteIndex: make(map[int]struct{}),
		loading:       make(map[operation]int),
		subscribers:   make(map[int]chan Snapshot),
	}

	s.restore(ctx)
	return s
}

// Snapshot returns the current state of the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

// Subscribe registers an observer which receives every snapshot produced
// after the call. Slow observers only ever see the most recent snapshot:
// the channel buffers one value and older, unread snapshots are replaced.
// The returned function unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Snapshot, 1)
	s.subscribers[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
}

// Close unsubscribes all observers.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}

// transition runs the mutation provided under the store lock. If the
// mutation reports a change, a new snapshot is published to subscribers and
// announced on the event bus. The (possibly unchanged) snapshot is returned.
func (s *Store) transition(mutate func() bool) Snapshot {
	s.mu.Lock()
	if !mutate() {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}

	s.version++
	snap := s.snapshotLocked()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	s.mu.Unlock()

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(event.SESSION_UPDATE, snap.Version)
	}

	return snap
}

func (s *Store) snapshotLocked() Snapshot {
	isLoading := s.search.status == Loading
	for _, count := range s.loading {
		if count > 0 {
			isLoading = true
			break
		}
	}

	return Snapshot{
		Version:     s.version,
		Trending:    slices.Clone(s.trending),
		Search:      s.search.state(),
		Favorites:   slices.Clone(s.favorites),
		LastSearch:  s.lastSearch,
		Genres:      slices.Clone(s.genres),
		IsLoading:   isLoading,
		Error:       s.err,
		HasMore:     s.search.hasMore(),
		CurrentPage: s.search.page,
	}
}

// restore reads the persisted slices of state. It is only called from New,
// before the store is shared, so no lock is required.
func (s *Store) restore(ctx context.Context) {
	if raw, ok := s.read(ctx, FavoritesKey); ok {
		var favorites []media.Movie
		if err := json.Unmarshal([]byte(raw), &favorites); err != nil {
			log.Warnf("Persisted favorites are corrupt (%v), starting with no favorites\n", err)
		} else {
			for _, movie := range favorites {
				if _, exists := s.favoriteIndex[movie.ID]; exists {
					continue
				}
				s.favoriteIndex[movie.ID] = struct{}{}
				s.favorites = append(s.favorites, movie)
			}
		}
	}

	if raw, ok := s.read(ctx, LastSearchKey); ok {
		s.lastSearch = raw
	}

	log.Emit(logger.DEBUG, "Restored session with %d favorites and last search %q\n", len(s.favorites), s.lastSearch)
}

func (s *Store) read(ctx context.Context, key string) (string, bool) {
	raw, err := s.storage.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			log.Warnf("Failed to read %s from storage (%v), treating as empty\n", key, err)
		}
		return "", false
	}

	return raw, true
}

// persistLocked writes the value to storage, recording a user-facing error
// if the write fails. Must be called with the store lock held.
func (s *Store) persistLocked(key string, value string) {
	if err := s.storage.Set(context.Background(), key, value); err != nil {
		log.Errorf("Failed to persist %s: %v\n", key, err)
		s.err = persistFailedMessage
	}
}
