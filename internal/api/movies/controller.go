package movies

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hbomb79/Marquee/internal/media"
	"github.com/hbomb79/Marquee/internal/session"
	"github.com/labstack/echo/v4"
)

type (
	Store interface {
		GetMovieDetails(ctx context.Context, movieID string) (*media.MovieDetails, error)
		GetRecommendations(ctx context.Context, movieID string) ([]media.Movie, error)
	}

	Controller struct{ store Store }
)

func New(store Store) *Controller {
	return &Controller{store}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/:id/", controller.get)
	eg.GET("/:id/recommendations/", controller.recommendations)
}

func (controller *Controller) get(ec echo.Context) error {
	movieID, err := parseMovieID(ec)
	if err != nil {
		return err
	}

	details, err := controller.store.GetMovieDetails(ec.Request().Context(), movieID)
	if err != nil {
		return unavailable(err)
	}

	return ec.JSON(http.StatusOK, details)
}

func (controller *Controller) recommendations(ec echo.Context) error {
	movieID, err := parseMovieID(ec)
	if err != nil {
		return err
	}

	movies, err := controller.store.GetRecommendations(ec.Request().Context(), movieID)
	if err != nil {
		return unavailable(err)
	}

	return ec.JSON(http.StatusOK, movies)
}

func parseMovieID(ec echo.Context) (string, error) {
	raw := ec.Param("id")
	if id, err := strconv.Atoi(raw); err != nil || id <= 0 {
		return "", echo.NewHTTPError(http.StatusBadRequest, "Movie ID must be a positive integer")
	}

	return raw, nil
}

// unavailable builds the error returned when the store could not provide
// the requested movie. Missing movies are a 404, anything else is treated
// as the catalog being unavailable.
func unavailable(err error) error {
	if session.IsNotFound(err) {
		return echo.NewHTTPError(http.StatusNotFound, session.NotFoundMessage)
	}

	return echo.NewHTTPError(http.StatusBadGateway, err.Error())
}
