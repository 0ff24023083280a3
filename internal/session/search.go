package session

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hbomb79/Marquee/internal/media"
)

// SearchStatus is the state of the search stream.
type SearchStatus int

const (
	Idle SearchStatus = iota
	Loading
	Ready
	Errored
)

func (status SearchStatus) String() string {
	switch status {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Errored:
		return "errored"
	}

	return fmt.Sprintf("SearchStatus(%d)", int(status))
}

func (status SearchStatus) MarshalText() ([]byte, error) {
	return []byte(status.String()), nil
}

func (status *SearchStatus) UnmarshalText(text []byte) error {
	for _, candidate := range []SearchStatus{Idle, Loading, Ready, Errored} {
		if candidate.String() == string(text) {
			*status = candidate
			return nil
		}
	}

	return fmt.Errorf("unknown search status %q", text)
}

// SearchState is the read-only view of the search stream found in a
// Snapshot. Results is the concatenation, in page order, of every page
// fetched for (Query, Filters) since the stream was last reset.
type SearchState struct {
	Status       SearchStatus  `json:"status"`
	Query        string        `json:"query"`
	Filters      media.Filters `json:"filters"`
	Page         int           `json:"page"`
	TotalPages   int           `json:"totalPages"`
	TotalResults int           `json:"totalResults"`
	Results      []media.Movie `json:"results"`
	HasMore      bool          `json:"hasMore"`
}

// searchStream is the mutable search state held by the store. Every reset
// of the stream increments the generation; a catalog response is only
// applied if the generation it was issued under is still current.
// fetching is the page currently in flight, or zero.
type searchStream struct {
	status       SearchStatus
	query        string
	filters      media.Filters
	page         int
	fetching     int
	totalPages   int
	totalResults int
	results      []media.Movie
	generation   uint64
}

func newSearchStream() searchStream {
	return searchStream{status: Idle, results: []media.Movie{}}
}

func (stream *searchStream) hasMore() bool {
	return stream.page < stream.totalPages
}

func (stream *searchStream) state() SearchState {
	return SearchState{
		Status:       stream.status,
		Query:        stream.query,
		Filters:      stream.filters,
		Page:         stream.page,
		TotalPages:   stream.totalPages,
		TotalResults: stream.totalResults,
		Results:      slices.Clone(stream.results),
		HasMore:      stream.hasMore(),
	}
}

// Search starts a new search stream for the query and filters provided.
// The held results are discarded immediately, before the catalog responds,
// and the first page is fetched. If a previous search is still in flight,
// its response is discarded when it arrives.
//
// A blank query is ignored, as is a repeat of the search whose first page
// is currently loading. Re-issuing the current search once it has settled,
// or while a later page is loading, re-fetches page one.
func (s *Store) Search(ctx context.Context, query string, filters media.Filters) Snapshot {
	query = strings.TrimSpace(query)
	filters = filters.Normalize()
	if query == "" {
		return s.Snapshot()
	}

	var generation uint64
	started := false
	s.transition(func() bool {
		if s.search.fetching == 1 && s.search.query == query && s.search.filters.Equal(filters) {
			return false
		}

		s.search.generation++
		generation = s.search.generation
		s.search.status = Loading
		s.search.query = query
		s.search.filters = filters
		s.search.page = 1
		s.search.fetching = 1
		s.search.totalPages = 0
		s.search.totalResults = 0
		s.search.results = []media.Movie{}
		s.err = ""

		if s.lastSearch != query {
			s.lastSearch = query
			s.persistLocked(LastSearchKey, query)
		}

		started = true
		return true
	})

	if !started {
		log.Debugf("Search for %q is already loading, ignoring repeat request\n", query)
		return s.Snapshot()
	}

	log.Debugf("Searching for %q (filters %+v, generation %d)\n", query, filters, generation)
	page, err := s.catalog.SearchMovies(ctx, query, 1, filters)

	return s.transition(func() bool {
		if s.search.generation != generation {
			log.Debugf("Discarding stale search response for %q (generation %d)\n", query, generation)
			return false
		}

		s.search.fetching = 0
		if err != nil {
			log.Warnf("Search for %q failed: %v\n", query, err)
			s.search.status = Errored
			s.search.results = []media.Movie{}
			s.err = userFacingMessage(err, searchFailedMessage)
			return true
		}

		s.search.status = Ready
		s.search.page = max(page.Page, 1)
		s.search.totalPages = page.TotalPages
		s.search.totalResults = page.TotalResults
		s.search.results = slices.Clone(page.Results)
		return true
	})
}

// LoadMore fetches the next page of the current search stream and appends
// it to the held results. It does nothing when the stream has no further
// pages, or when a fetch for the stream is already in flight. A failed page
// leaves the previously accumulated results in place.
func (s *Store) LoadMore(ctx context.Context) Snapshot {
	var (
		generation uint64
		query      string
		filters    media.Filters
		next       int
	)
	started := false
	s.transition(func() bool {
		if s.search.status != Ready && s.search.status != Errored {
			return false
		}
		if !s.search.hasMore() {
			return false
		}

		generation = s.search.generation
		query = s.search.query
		filters = s.search.filters
		next = s.search.page + 1

		s.search.status = Loading
		s.search.fetching = next
		s.err = ""
		started = true
		return true
	})

	if !started {
		return s.Snapshot()
	}

	log.Debugf("Loading page %d of search %q\n", next, query)
	page, err := s.catalog.SearchMovies(ctx, query, next, filters)

	return s.transition(func() bool {
		if s.search.generation != generation {
			log.Debugf("Discarding stale page %d for search %q\n", next, query)
			return false
		}

		s.search.fetching = 0
		if err != nil {
			log.Warnf("Loading page %d of %q failed: %v\n", next, query, err)
			s.search.status = Errored
			s.err = userFacingMessage(err, loadMoreFailedMessage)
			return true
		}

		s.search.status = Ready
		s.search.page = max(page.Page, next)
		s.search.totalPages = page.TotalPages
		s.search.totalResults = page.TotalResults
		s.search.results = append(s.search.results, page.Results...)
		return true
	})
}
