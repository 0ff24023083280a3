package search

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Marquee/internal/media"
	"github.com/hbomb79/Marquee/internal/session"
	"github.com/labstack/echo/v4"
)

type (
	// Request describes a new search. GenreNames are resolved to genre IDs
	// using the catalog taxonomy and merged in to the filters.
	Request struct {
		Query      string        `json:"query" validate:"required,max=500"`
		Filters    media.Filters `json:"filters"`
		GenreNames []string      `json:"genreNames" validate:"omitempty,max=20,dive,required"`
	}

	Store interface {
		Search(ctx context.Context, query string, filters media.Filters) session.Snapshot
		LoadMore(ctx context.Context) session.Snapshot
		ResolveGenres(ctx context.Context, names []string) ([]int, []string, error)
	}

	Controller struct {
		store    Store
		validate *validator.Validate
	}
)

func New(validate *validator.Validate, store Store) *Controller {
	return &Controller{store: store, validate: validate}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/", controller.search)
	eg.POST("/more/", controller.loadMore)
}

// search starts a new search stream. The response is the snapshot once
// the first page has settled; if a newer search superseded this one in
// the meantime, the snapshot reflects the newer search instead.
func (controller *Controller) search(ec echo.Context) error {
	var request Request
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid body: %s", err.Error()))
	}

	if err := controller.validate.Struct(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid body: %s", err.Error()))
	}

	query := strings.TrimSpace(request.Query)
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid body: query must not be blank")
	}

	ctx := context.WithoutCancel(ec.Request().Context())
	filters := request.Filters
	if len(request.GenreNames) > 0 {
		ids, unresolved, err := controller.store.ResolveGenres(ctx, request.GenreNames)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		if len(unresolved) > 0 {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Unknown genres: %s", strings.Join(unresolved, ", ")))
		}

		filters.Genres = slices.Concat(filters.Genres, ids)
	}

	return ec.JSON(http.StatusOK, controller.store.Search(ctx, query, filters))
}

// loadMore fetches the next page of the current search. Requests made
// while a page is loading, or once all pages are loaded, are ignored and
// the current snapshot returned.
func (controller *Controller) loadMore(ec echo.Context) error {
	return ec.JSON(http.StatusOK, controller.store.LoadMore(context.WithoutCancel(ec.Request().Context())))
}
