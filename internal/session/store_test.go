package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hbomb79/Marquee/internal/event"
	"github.com/hbomb79/Marquee/internal/http/tmdb"
	"github.com/hbomb79/Marquee/internal/media"
	"github.com/hbomb79/Marquee/internal/session"
	"github.com/hbomb79/Marquee/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOffline = &tmdb.TransportError{Path: "/test", Err: errors.New("network unreachable")}

// fakeCatalog delegates each call to the function configured for it. Any
// function left nil fails the call with a transport error.
type fakeCatalog struct {
	search          func(ctx context.Context, query string, page int, filters media.Filters) (*media.SearchPage, error)
	trending        func(ctx context.Context) ([]media.Movie, error)
	details         func(ctx context.Context, id string) (*media.MovieDetails, error)
	recommendations func(ctx context.Context, id string) ([]media.Movie, error)
	genres          func(ctx context.Context) ([]media.Genre, error)

	searchCalls atomic.Int32
	genreCalls  atomic.Int32
}

func (f *fakeCatalog) SearchMovies(ctx context.Context, query string, page int, filters media.Filters) (*media.SearchPage, error) {
	f.searchCalls.Add(1)
	if f.search == nil {
		return nil, errOffline
	}
	return f.search(ctx, query, page, filters)
}

func (f *fakeCatalog) FetchTrending(ctx context.Context) ([]media.Movie, error) {
	if f.trending == nil {
		return nil, errOffline
	}
	return f.trending(ctx)
}

func (f *fakeCatalog) FetchMovieDetails(ctx context.Context, id string) (*media.MovieDetails, error) {
	if f.details == nil {
		return nil, errOffline
	}
	return f.details(ctx, id)
}

func (f *fakeCatalog) FetchRecommendations(ctx context.Context, id string) ([]media.Movie, error) {
	if f.recommendations == nil {
		return nil, errOffline
	}
	return f.recommendations(ctx, id)
}

func (f *fakeCatalog) FetchGenres(ctx context.Context) ([]media.Genre, error) {
	f.genreCalls.Add(1)
	if f.genres == nil {
		return nil, errOffline
	}
	return f.genres(ctx)
}

// pagedResults returns a search function which serves totalPages pages
// of perPage movies each. Movie IDs encode the query offset and page so
// that results from different searches can be told apart.
func pagedResults(offset int, totalPages int, perPage int) func(context.Context, string, int, media.Filters) (*media.SearchPage, error) {
	return func(_ context.Context, query string, page int, _ media.Filters) (*media.SearchPage, error) {
		return makePage(offset, page, totalPages, perPage), nil
	}
}

func makePage(offset int, page int, totalPages int, perPage int) *media.SearchPage {
	results := make([]media.Movie, perPage)
	for i := range perPage {
		id := offset + page*100 + i
		results[i] = media.Movie{ID: id, Title: fmt.Sprintf("Movie %d", id), ReleaseDate: media.UnknownReleaseDate, GenreIDs: []int{}}
	}

	return &media.SearchPage{Page: page, TotalPages: totalPages, TotalResults: totalPages * perPage, Results: results}
}

func movieIDs(movies []media.Movie) []int {
	ids := make([]int, len(movies))
	for i, m := range movies {
		ids[i] = m.ID
	}
	return ids
}

func newStore(t *testing.T, catalog session.Catalog) (*session.Store, storage.Storage) {
	store := storage.NewMemoryStorage()
	s := session.New(context.Background(), catalog, store, nil)
	t.Cleanup(s.Close)
	return s, store
}

func waitForSearch(t *testing.T, s *session.Store, query string, status session.SearchStatus) {
	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return snap.Search.Query == query && snap.Search.Status == status
	}, time.Second, time.Millisecond, "search for %q never reached %s", query, status)
}

func Test_Search_ReplacesResults(t *testing.T) {
	catalog := &fakeCatalog{search: pagedResults(0, 3, 2)}
	s, _ := newStore(t, catalog)

	snap := s.Snapshot()
	assert.Equal(t, session.Idle, snap.Search.Status)
	assert.Empty(t, snap.Search.Results)

	snap = s.Search(context.Background(), "  alien  ", media.Filters{})
	assert.Equal(t, session.Ready, snap.Search.Status)
	assert.Equal(t, "alien", snap.Search.Query, "query should be trimmed")
	assert.Equal(t, []int{100, 101}, movieIDs(snap.Search.Results))
	assert.Equal(t, 1, snap.CurrentPage)
	assert.True(t, snap.HasMore)
	assert.False(t, snap.IsLoading)
	assert.Empty(t, snap.Error)
	assert.Equal(t, "alien", snap.LastSearch)

	// Re-issuing a settled search refetches page one rather than appending
	snap = s.Search(context.Background(), "alien", media.Filters{})
	assert.Equal(t, []int{100, 101}, movieIDs(snap.Search.Results))
	assert.Equal(t, int32(2), catalog.searchCalls.Load())
}

func Test_Search_BlankQueryIgnored(t *testing.T) {
	catalog := &fakeCatalog{search: pagedResults(0, 1, 1)}
	s, _ := newStore(t, catalog)

	before := s.Snapshot()
	after := s.Search(context.Background(), "   ", media.Filters{Year: 2000})
	assert.Equal(t, before, after)
	assert.Equal(t, int32(0), catalog.searchCalls.Load())
}

func Test_Search_ResetsImmediately(t *testing.T) {
	release := make(chan struct{})
	catalog := &fakeCatalog{search: func(ctx context.Context, query string, page int, filters media.Filters) (*media.SearchPage, error) {
		if query == "second" {
			<-release
			return makePage(5000, page, 1, 1), nil
		}
		return makePage(0, page, 2, 3), nil
	}}
	s, _ := newStore(t, catalog)

	first := s.Search(context.Background(), "first", media.Filters{})
	require.Len(t, first.Search.Results, 3)

	done := make(chan session.Snapshot)
	go func() { done <- s.Search(context.Background(), "second", media.Filters{}) }()

	waitForSearch(t, s, "second", session.Loading)
	loading := s.Snapshot()
	assert.Empty(t, loading.Search.Results, "results from the previous query must be discarded before the fetch resolves")
	assert.Equal(t, 1, loading.CurrentPage)
	assert.False(t, loading.HasMore)
	assert.True(t, loading.IsLoading)

	close(release)
	final := <-done
	assert.Equal(t, []int{5100}, movieIDs(final.Search.Results))
}

func Test_Search_StaleResponseDiscarded(t *testing.T) {
	releaseA := make(chan struct{})
	catalog := &fakeCatalog{search: func(ctx context.Context, query string, page int, filters media.Filters) (*media.SearchPage, error) {
		if filters.Year == 1999 {
			<-releaseA
			return makePage(1000, page, 5, 4), nil
		}
		return makePage(2000, page, 2, 2), nil
	}}
	s, _ := newStore(t, catalog)

	doneA := make(chan session.Snapshot)
	go func() { doneA <- s.Search(context.Background(), "matrix", media.Filters{Year: 1999}) }()
	waitForSearch(t, s, "matrix", session.Loading)

	snapB := s.Search(context.Background(), "matrix", media.Filters{Year: 2003})
	require.Equal(t, session.Ready, snapB.Search.Status)

	close(releaseA)
	<-doneA

	final := s.Snapshot()
	assert.Equal(t, 2003, final.Search.Filters.Year)
	assert.Equal(t, []int{2100, 2101}, movieIDs(final.Search.Results), "the superseded response must not be applied")
	assert.Equal(t, 2, final.Search.TotalPages)
	assert.Equal(t, session.Ready, final.Search.Status)
}

func Test_Search_RepeatWhileLoadingIsNoop(t *testing.T) {
	release := make(chan struct{})
	catalog := &fakeCatalog{search: func(ctx context.Context, query string, page int, filters media.Filters) (*media.SearchPage, error) {
		<-release
		return makePage(0, page, 1, 1), nil
	}}
	s, _ := newStore(t, catalog)

	done := make(chan session.Snapshot)
	go func() { done <- s.Search(context.Background(), "dune", media.Filters{Genres: []int{12, 878}}) }()
	waitForSearch(t, s, "dune", session.Loading)

	require.Eventually(t, func() bool { return catalog.searchCalls.Load() == 1 }, time.Second, time.Millisecond)

	// Same query and equivalent filters (ordering differs)
	snap := s.Search(context.Background(), "dune", media.Filters{Genres: []int{878, 12, 12}})
	assert.Equal(t, session.Loading, snap.Search.Status)
	assert.Equal(t, int32(1), catalog.searchCalls.Load())

	close(release)
	final := <-done
	assert.Equal(t, session.Ready, final.Search.Status)
}

func Test_Search_RepeatWhileLoadingMoreRefetches(t *testing.T) {
	release := make(chan struct{})
	catalog := &fakeCatalog{search: func(ctx context.Context, query string, page int, filters media.Filters) (*media.SearchPage, error) {
		if page == 2 {
			<-release
		}
		return makePage(0, page, 3, 2), nil
	}}
	s, _ := newStore(t, catalog)

	s.Search(context.Background(), "dune", media.Filters{})
	done := make(chan session.Snapshot)
	go func() { done <- s.LoadMore(context.Background()) }()
	waitForSearch(t, s, "dune", session.Loading)

	snap := s.Search(context.Background(), "dune", media.Filters{})
	assert.Equal(t, session.Ready, snap.Search.Status)
	assert.Equal(t, 1, snap.CurrentPage)
	assert.Equal(t, []int{100, 101}, movieIDs(snap.Search.Results))
	assert.Equal(t, int32(3), catalog.searchCalls.Load(), "page one must be fetched again")

	close(release)
	<-done

	final := s.Snapshot()
	assert.Equal(t, 1, final.CurrentPage, "the superseded page must not be appended")
	assert.Equal(t, []int{100, 101}, movieIDs(final.Search.Results))
}

func Test_Search_Failure(t *testing.T) {
	tests := []struct {
		summary  string
		err      error
		expected string
	}{
		{"transport error uses operation message", errOffline, "Failed to search movies"},
		{"upstream error uses catalog message", &tmdb.UpstreamError{HttpCode: 401, TmdbCode: 7, Message: "Invalid API key"}, "Invalid API key"},
		{"upstream error without message", &tmdb.UpstreamError{HttpCode: 500, TmdbCode: -1}, "Failed to search movies"},
	}

	for _, tt := range tests {
		t.Run(tt.summary, func(t *testing.T) {
			fail := false
			catalog := &fakeCatalog{search: func(ctx context.Context, query string, page int, filters media.Filters) (*media.SearchPage, error) {
				if fail {
					return nil, tt.err
				}
				return makePage(0, page, 2, 2), nil
			}}
			s, _ := newStore(t, catalog)

			s.Search(context.Background(), "ok", media.Filters{})
			fail = true
			snap := s.Search(context.Background(), "broken", media.Filters{})

			assert.Equal(t, session.Errored, snap.Search.Status)
			assert.Empty(t, snap.Search.Results)
			assert.False(t, snap.HasMore)
			assert.Equal(t, tt.expected, snap.Error)

			// A new user initiated operation clears the error
			fail = false
			snap = s.Search(context.Background(), "ok again", media.Filters{})
			assert.Empty(t, snap.Error)
			assert.Equal(t, session.Ready, snap.Search.Status)
		})
	}
}

func Test_LoadMore_UntilExhausted(t *testing.T) {
	catalog := &fakeCatalog{search: pagedResults(0, 3, 2)}
	s, _ := newStore(t, catalog)

	snap := s.Search(context.Background(), "star", media.Filters{MinRating: 6})
	require.True(t, snap.HasMore)

	snap = s.LoadMore(context.Background())
	assert.Equal(t, 2, snap.CurrentPage)
	assert.True(t, snap.HasMore)

	snap = s.LoadMore(context.Background())
	assert.Equal(t, 3, snap.CurrentPage)
	assert.False(t, snap.HasMore)

	snap = s.LoadMore(context.Background())
	assert.False(t, snap.HasMore)
	assert.Equal(t, []int{100, 101, 200, 201, 300, 301}, movieIDs(snap.Search.Results), "pages must be concatenated in order")
	assert.Equal(t, int32(3), catalog.searchCalls.Load(), "load more with no further pages must not fetch")
}

func Test_LoadMore_Guards(t *testing.T) {
	release := make(chan struct{})
	catalog := &fakeCatalog{search: func(ctx context.Context, query string, page int, filters media.Filters) (*media.SearchPage, error) {
		if page == 2 {
			<-release
		}
		return makePage(0, page, 4, 1), nil
	}}
	s, _ := newStore(t, catalog)

	// Idle stream
	snap := s.LoadMore(context.Background())
	assert.Equal(t, session.Idle, snap.Search.Status)
	assert.Equal(t, int32(0), catalog.searchCalls.Load())

	s.Search(context.Background(), "heat", media.Filters{})

	done := make(chan session.Snapshot)
	go func() { done <- s.LoadMore(context.Background()) }()
	waitForSearch(t, s, "heat", session.Loading)
	require.Eventually(t, func() bool { return catalog.searchCalls.Load() == 2 }, time.Second, time.Millisecond)

	snap = s.LoadMore(context.Background())
	assert.Equal(t, session.Loading, snap.Search.Status)
	assert.Equal(t, int32(2), catalog.searchCalls.Load(), "load more while loading must not fetch")

	close(release)
	final := <-done
	assert.Equal(t, []int{100, 200}, movieIDs(final.Search.Results))
}

func Test_LoadMore_FailureKeepsResults(t *testing.T) {
	fail := true
	catalog := &fakeCatalog{search: func(ctx context.Context, query string, page int, filters media.Filters) (*media.SearchPage, error) {
		if page == 2 && fail {
			return nil, &tmdb.UpstreamError{HttpCode: 503, TmdbCode: 9, Message: "Service offline"}
		}
		return makePage(0, page, 2, 2), nil
	}}
	s, _ := newStore(t, catalog)

	s.Search(context.Background(), "jaws", media.Filters{})
	snap := s.LoadMore(context.Background())
	assert.Equal(t, session.Errored, snap.Search.Status)
	assert.Equal(t, "Service offline", snap.Error)
	assert.Equal(t, []int{100, 101}, movieIDs(snap.Search.Results), "accumulated results must be retained")
	assert.Equal(t, 1, snap.CurrentPage)
	assert.True(t, snap.HasMore)

	fail = false
	snap = s.LoadMore(context.Background())
	assert.Equal(t, session.Ready, snap.Search.Status)
	assert.Empty(t, snap.Error)
	assert.Equal(t, []int{100, 101, 200, 201}, movieIDs(snap.Search.Results))
}

func Test_LoadMore_SupersededBySearch(t *testing.T) {
	release := make(chan struct{})
	catalog := &fakeCatalog{search: func(ctx context.Context, query string, page int, filters media.Filters) (*media.SearchPage, error) {
		if query == "old" && page == 2 {
			<-release
		}
		if query == "old" {
			return makePage(0, page, 3, 1), nil
		}
		return makePage(7000, page, 1, 1), nil
	}}
	s, _ := newStore(t, catalog)

	s.Search(context.Background(), "old", media.Filters{})
	done := make(chan session.Snapshot)
	go func() { done <- s.LoadMore(context.Background()) }()
	waitForSearch(t, s, "old", session.Loading)

	s.Search(context.Background(), "new", media.Filters{})
	close(release)
	<-done

	final := s.Snapshot()
	assert.Equal(t, "new", final.Search.Query)
	assert.Equal(t, []int{7100}, movieIDs(final.Search.Results))
}

func Test_FetchTrending(t *testing.T) {
	fail := false
	catalog := &fakeCatalog{trending: func(ctx context.Context) ([]media.Movie, error) {
		if fail {
			return nil, errOffline
		}
		return []media.Movie{{ID: 1, Title: "One"}, {ID: 2, Title: "Two"}}, nil
	}}
	s, _ := newStore(t, catalog)

	snap := s.FetchTrending(context.Background())
	assert.Equal(t, []int{1, 2}, movieIDs(snap.Trending))
	assert.Empty(t, snap.Error)
	assert.False(t, snap.IsLoading)

	fail = true
	snap = s.FetchTrending(context.Background())
	assert.Equal(t, []int{1, 2}, movieIDs(snap.Trending), "previous list must remain visible on failure")
	assert.Equal(t, "Failed to fetch trending movies", snap.Error)
}

func Test_GetMovieDetails(t *testing.T) {
	catalog := &fakeCatalog{details: func(ctx context.Context, id string) (*media.MovieDetails, error) {
		if id == "603" {
			return &media.MovieDetails{Movie: media.Movie{ID: 603, Title: "The Matrix"}, Runtime: 136}, nil
		}
		return nil, &tmdb.NotFoundError{ID: id}
	}}
	s, _ := newStore(t, catalog)

	details, err := s.GetMovieDetails(context.Background(), "603")
	require.NoError(t, err)
	assert.Equal(t, 136, details.Runtime)
	assert.Empty(t, s.Snapshot().Error)

	details, err = s.GetMovieDetails(context.Background(), "404")
	assert.Nil(t, details)
	require.Error(t, err)
	assert.True(t, session.IsNotFound(err))
	assert.Equal(t, session.NotFoundMessage, err.Error())

	snap := s.Snapshot()
	assert.Equal(t, "Movie not found", snap.Error)
	assert.False(t, snap.IsLoading)
}

// The cause of a failure is returned to the caller even when another
// operation clears the shared error before the caller can inspect it.
func Test_GetMovieDetails_FailureNotLostToInterleavedOperation(t *testing.T) {
	catalog := &fakeCatalog{details: func(ctx context.Context, id string) (*media.MovieDetails, error) {
		return nil, errOffline
	}}
	bus := event.New()
	s := session.New(context.Background(), catalog, storage.NewMemoryStorage(), bus)
	t.Cleanup(s.Close)

	var once sync.Once
	bus.RegisterHandlerFunction(event.SESSION_UPDATE, func(event.Event, event.Payload) {
		if s.Snapshot().Error == "" {
			return
		}
		once.Do(func() { s.AddToFavorites(media.Movie{ID: 1, Title: "Alien"}) })
	})

	details, err := s.GetMovieDetails(context.Background(), "603")
	assert.Nil(t, details)
	require.Error(t, err)
	assert.False(t, session.IsNotFound(err))
	assert.Equal(t, "Failed to fetch movie details", err.Error())
	assert.ErrorIs(t, err, errOffline)
	assert.Empty(t, s.Snapshot().Error, "the favorite mutation should have cleared the shared error")
}

func Test_GetRecommendations(t *testing.T) {
	catalog := &fakeCatalog{recommendations: func(ctx context.Context, id string) ([]media.Movie, error) {
		if id == "1" {
			return []media.Movie{{ID: 10}, {ID: 11}}, nil
		}
		return nil, errOffline
	}}
	s, _ := newStore(t, catalog)

	movies, err := s.GetRecommendations(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, []int{10, 11}, movieIDs(movies))

	movies, err = s.GetRecommendations(context.Background(), "2")
	assert.Nil(t, movies)
	assert.EqualError(t, err, "Failed to fetch recommendations")
	assert.Equal(t, "Failed to fetch recommendations", s.Snapshot().Error)
}

func Test_Genres_CachedAndCoalesced(t *testing.T) {
	release := make(chan struct{})
	catalog := &fakeCatalog{genres: func(ctx context.Context) ([]media.Genre, error) {
		<-release
		return []media.Genre{{ID: 28, Name: "Action"}, {ID: 35, Name: "Comedy"}}, nil
	}}
	s, _ := newStore(t, catalog)

	wg := sync.WaitGroup{}
	results := make([][]media.Genre, 5)
	for i := range 5 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = s.Genres(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return catalog.genreCalls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	for _, r := range results {
		assert.Len(t, r, 2)
	}

	genres, err := s.Genres(context.Background())
	require.NoError(t, err)
	assert.Len(t, genres, 2)
	assert.Equal(t, int32(1), catalog.genreCalls.Load(), "genres must be fetched once")
	assert.Len(t, s.Snapshot().Genres, 2)
}

func Test_Genres_FailureSurfacesError(t *testing.T) {
	fail := true
	catalog := &fakeCatalog{genres: func(ctx context.Context) ([]media.Genre, error) {
		if fail {
			return nil, errOffline
		}
		return []media.Genre{{ID: 18, Name: "Drama"}}, nil
	}}
	s, _ := newStore(t, catalog)

	genres, err := s.Genres(context.Background())
	assert.Nil(t, genres)
	assert.EqualError(t, err, "Failed to fetch genres")
	assert.Equal(t, "Failed to fetch genres", s.Snapshot().Error, "a genre failure must not be silent")

	fail = false
	genres, err = s.Genres(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []media.Genre{{ID: 18, Name: "Drama"}}, genres)
	assert.Empty(t, s.Snapshot().Error)
	assert.Equal(t, int32(2), catalog.genreCalls.Load())
}

func Test_ResolveGenres(t *testing.T) {
	catalog := &fakeCatalog{genres: func(ctx context.Context) ([]media.Genre, error) {
		return []media.Genre{{ID: 28, Name: "Action"}, {ID: 35, Name: "Comedy"}, {ID: 27, Name: "Horror"}}, nil
	}}
	s, _ := newStore(t, catalog)

	ids, unresolved, err := s.ResolveGenres(context.Background(), []string{"action", " Comdy ", "Zzzz", ""})
	require.NoError(t, err)
	assert.Equal(t, []int{28, 35}, ids)
	assert.Equal(t, []string{"Zzzz"}, unresolved)
}

func Test_ResolveGenres_TaxonomyUnavailable(t *testing.T) {
	s, _ := newStore(t, &fakeCatalog{})

	ids, unresolved, err := s.ResolveGenres(context.Background(), []string{"Action"})
	assert.Nil(t, ids)
	assert.Empty(t, unresolved, "no name can be judged unknown without a taxonomy")
	assert.EqualError(t, err, "Failed to fetch genres")
}

func Test_Snapshot_VersionAndIsolation(t *testing.T) {
	s, _ := newStore(t, &fakeCatalog{})

	v0 := s.Snapshot().Version
	snap := s.AddToFavorites(media.Movie{ID: 1})
	assert.Greater(t, snap.Version, v0)

	// No-op transitions do not produce a new version
	again := s.AddToFavorites(media.Movie{ID: 1})
	assert.Equal(t, snap.Version, again.Version)

	snap.Favorites[0].Title = "mutated"
	assert.Empty(t, s.Favorites()[0].Title, "snapshots must not share state with the store")
}

func Test_Subscribe(t *testing.T) {
	s, _ := newStore(t, &fakeCatalog{})

	updates, unsubscribe := s.Subscribe()
	s.AddToFavorites(media.Movie{ID: 1})
	s.AddToFavorites(media.Movie{ID: 2})

	select {
	case snap := <-updates:
		assert.Len(t, snap.Favorites, 2, "slow subscribers only see the latest snapshot")
	case <-time.After(time.Second):
		t.Fatal("expected snapshot on subscription channel")
	}

	unsubscribe()
	_, open := <-updates
	assert.False(t, open)
}

type recordingDispatcher struct {
	sync.Mutex
	versions []uint64
}

func (d *recordingDispatcher) Dispatch(ev event.Event, payload event.Payload) {
	d.Lock()
	defer d.Unlock()
	if ev == event.SESSION_UPDATE {
		d.versions = append(d.versions, payload.(uint64))
	}
}

func Test_DispatchesSessionUpdates(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	s := session.New(context.Background(), &fakeCatalog{}, storage.NewMemoryStorage(), dispatcher)

	s.AddToFavorites(media.Movie{ID: 1})
	last := s.RemoveFromFavorites(1)

	dispatcher.Lock()
	defer dispatcher.Unlock()
	require.Len(t, dispatcher.versions, 2)
	assert.Equal(t, last.Version, dispatcher.versions[1])
}
