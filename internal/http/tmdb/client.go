package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hbomb79/Marquee/internal/media"
	"github.com/hbomb79/Marquee/pkg/logger"
	"golang.org/x/time/rate"
)

const (
	tmdbTrendingPath        = "/trending/movie/week"
	tmdbSearchMoviePath     = "/search/movie"
	tmdbMovieTemplate       = "/movie/%s"
	tmdbRecommendationsPath = "/movie/%s/recommendations"
	tmdbGenreListPath       = "/genre/movie/list"

	// TMDB reports this status code when the requested resource does not exist
	tmdbResourceNotFoundCode = 34
)

var log = logger.Get("TMDB")

type (
	Config struct {
		ApiKey         string        `yaml:"api_key" env:"TMDB_API_KEY" env-required:"true"`
		BaseURL        string        `yaml:"base_url" env:"TMDB_BASE_URL" env-default:"https://api.themoviedb.org/3"`
		Language       string        `yaml:"language" env:"TMDB_LANGUAGE" env-default:"en-US"`
		RequestTimeout time.Duration `yaml:"request_timeout" env:"TMDB_REQUEST_TIMEOUT" env-default:"10s"`
		RateLimit      float64       `yaml:"rate_limit" env:"TMDB_RATE_LIMIT" env-default:"40"`
		RateBurst      int           `yaml:"rate_burst" env:"TMDB_RATE_BURST" env-default:"20"`
	}

	// Client is the catalog client used to query the TMDB API for
	// trending movies, search results, details and the genre taxonomy.
	// The client owns no state beyond its configuration and is safe for
	// concurrent use; all requests are throttled by a shared rate limiter.
	// See https://developer.themoviedb.org/reference/intro/getting-started for
	// information on the TMDB API.
	Client struct {
		config  Config
		http    *http.Client
		limiter *rate.Limiter
	}

	listResponse struct {
		Results []rawMovie `json:"results"`
	}

	searchResponse struct {
		Page         int        `json:"page"`
		Results      []rawMovie `json:"results"`
		TotalPages   int        `json:"total_pages"`
		TotalResults int        `json:"total_results"`
	}

	genreResponse struct {
		Genres []media.Genre `json:"genres"`
	}
)

func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.themoviedb.org/3"
	}
	if config.Language == "" {
		config.Language = "en-US"
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	burst := config.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.RequestTimeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// FetchTrending returns the movies trending on TMDB this week.
func (client *Client) FetchTrending(ctx context.Context) ([]media.Movie, error) {
	var resp listResponse
	if err := client.getJson(ctx, tmdbTrendingPath, nil, &resp); err != nil {
		return nil, err
	}

	return TmdbMoviesToMedia(resp.Results), nil
}

// SearchMovies queries TMDB for the given page of movies matching the query,
// constrained by the filters provided. Adult content is always excluded. The
// query must not be blank, and the page must be at least 1; such requests are
// rejected without contacting TMDB.
func (client *Client) SearchMovies(ctx context.Context, query string, page int, filters media.Filters) (*media.SearchPage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &IllegalRequestError{"search query must not be empty"}
	} else if page < 1 {
		return nil, &IllegalRequestError{fmt.Sprintf("search page %d is out of range (must be >= 1)", page)}
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("page", strconv.Itoa(page))
	params.Set("include_adult", "false")

	f := filters.Normalize()
	if f.Year != 0 {
		params.Set("year", strconv.Itoa(f.Year))
	}
	if f.MinRating != 0 {
		params.Set("vote_average.gte", strconv.FormatFloat(f.MinRating, 'f', -1, 64))
	}
	if len(f.Genres) > 0 {
		params.Set("with_genres", f.GenreList())
	}

	var resp searchResponse
	if err := client.getJson(ctx, tmdbSearchMoviePath, params, &resp); err != nil {
		return nil, err
	}

	return &media.SearchPage{
		Page:         resp.Page,
		TotalPages:   resp.TotalPages,
		TotalResults: resp.TotalResults,
		Results:      TmdbMoviesToMedia(resp.Results),
	}, nil
}

// FetchMovieDetails queries TMDB for the movie with the given ID, asking for
// the videos and credits to be appended to the same response. A NotFoundError
// is returned if TMDB does not know of the ID.
func (client *Client) FetchMovieDetails(ctx context.Context, movieID string) (*media.MovieDetails, error) {
	if strings.TrimSpace(movieID) == "" {
		return nil, &IllegalRequestError{"movie ID must not be empty"}
	}

	params := url.Values{}
	params.Set("append_to_response", "videos,credits")

	var details rawMovieDetails
	if err := client.getJson(ctx, fmt.Sprintf(tmdbMovieTemplate, url.PathEscape(movieID)), params, &details); err != nil {
		return nil, asNotFound(err, movieID)
	}

	return TmdbDetailsToMedia(&details), nil
}

// FetchRecommendations returns the movies TMDB recommends for
// viewers of the movie with the given ID.
func (client *Client) FetchRecommendations(ctx context.Context, movieID string) ([]media.Movie, error) {
	if strings.TrimSpace(movieID) == "" {
		return nil, &IllegalRequestError{"movie ID must not be empty"}
	}

	var resp listResponse
	if err := client.getJson(ctx, fmt.Sprintf(tmdbRecommendationsPath, url.PathEscape(movieID)), nil, &resp); err != nil {
		return nil, asNotFound(err, movieID)
	}

	return TmdbMoviesToMedia(resp.Results), nil
}

// FetchGenres returns the TMDB movie genre taxonomy.
func (client *Client) FetchGenres(ctx context.Context) ([]media.Genre, error) {
	var resp genreResponse
	if err := client.getJson(ctx, tmdbGenreListPath, nil, &resp); err != nil {
		return nil, err
	}

	if resp.Genres == nil {
		return []media.Genre{}, nil
	}
	return resp.Genres, nil
}

// getJson performs a GET request against the TMDB API path given, with the
// API key and language attached, and unmarshals the JSON response in to the
// target provided. Failures are reported as one of the typed errors in this package.
func (client *Client) getJson(ctx context.Context, path string, params url.Values, target any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", client.config.ApiKey)
	params.Set("language", client.config.Language)

	if err := client.limiter.Wait(ctx); err != nil {
		return &TransportError{Path: path, Err: err}
	}

	endpoint := strings.TrimRight(client.config.BaseURL, "/") + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &IllegalRequestError{fmt.Sprintf("failed to construct request for %s: %s", path, err)}
	}
	req.Header.Set("Accept", "application/json")

	log.Verbosef("GET %s\n", path)
	resp, err := client.http.Do(req)
	if err != nil {
		return &TransportError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Path: path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var tmdbErr tmdbError
		if err := json.Unmarshal(body, &tmdbErr); err != nil || tmdbErr.StatusMessage == "" {
			return &UpstreamError{HttpCode: resp.StatusCode, TmdbCode: -1, Message: ""}
		}

		return &UpstreamError{HttpCode: resp.StatusCode, TmdbCode: tmdbErr.StatusCode, Message: tmdbErr.StatusMessage}
	}

	if err := json.Unmarshal(body, target); err != nil {
		log.Warnf("Response from %s could not be unmarshalled: %v\n", path, err)
		return &UpstreamError{HttpCode: resp.StatusCode, TmdbCode: -1, Message: fmt.Sprintf("response JSON could not be unmarshalled: %s", err)}
	}

	return nil
}

// asNotFound converts an upstream error which indicates a missing
// resource in to a NotFoundError for the given ID.
func asNotFound(err error, id string) error {
	var upstream *UpstreamError
	if errors.As(err, &upstream) && (upstream.HttpCode == http.StatusNotFound || upstream.TmdbCode == tmdbResourceNotFoundCode) {
		return &NotFoundError{ID: id}
	}

	return err
}
