package favorites

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Marquee/internal/media"
	"github.com/hbomb79/Marquee/internal/session"
	"github.com/labstack/echo/v4"
)

type (
	// MovieRequest is the movie snapshot to store as a favorite. Favorites
	// hold the full movie so that they can be listed without the catalog.
	MovieRequest struct {
		ID          int     `json:"id" validate:"required,gt=0"`
		Title       string  `json:"title" validate:"required"`
		PosterPath  *string `json:"poster_path"`
		ReleaseDate string  `json:"release_date"`
		VoteAverage float64 `json:"vote_average" validate:"gte=0,lte=10"`
		Overview    string  `json:"overview"`
		GenreIDs    []int   `json:"genre_ids" validate:"omitempty,dive,gt=0"`
	}

	FavoriteDto struct {
		Favorite bool `json:"favorite"`
	}

	Store interface {
		AddToFavorites(movie media.Movie) session.Snapshot
		RemoveFromFavorites(movieID int) session.Snapshot
		IsFavorite(movieID int) bool
		Favorites() []media.Movie
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
	eg.GET("/", controller.list)
	eg.POST("/", controller.add)
	eg.GET("/:id/", controller.get)
	eg.DELETE("/:id/", controller.remove)
}

func (controller *Controller) list(ec echo.Context) error {
	return ec.JSON(http.StatusOK, controller.store.Favorites())
}

func (controller *Controller) add(ec echo.Context) error {
	var request MovieRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid body: %s", err.Error()))
	}

	if err := controller.validate.Struct(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid body: %s", err.Error()))
	}

	snapshot := controller.store.AddToFavorites(NewMovieModel(&request))
	return ec.JSON(http.StatusOK, snapshot)
}

func (controller *Controller) get(ec echo.Context) error {
	movieID, err := parseMovieID(ec)
	if err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, FavoriteDto{Favorite: controller.store.IsFavorite(movieID)})
}

func (controller *Controller) remove(ec echo.Context) error {
	movieID, err := parseMovieID(ec)
	if err != nil {
		return err
	}

	return ec.JSON(http.StatusOK, controller.store.RemoveFromFavorites(movieID))
}

// NewMovieModel converts the request in to a movie, normalising the
// release date and genres the same way the catalog client does.
func NewMovieModel(request *MovieRequest) media.Movie {
	releaseDate := request.ReleaseDate
	if releaseDate == "" {
		releaseDate = media.UnknownReleaseDate
	}

	genreIDs := request.GenreIDs
	if genreIDs == nil {
		genreIDs = []int{}
	}

	return media.Movie{
		ID:          request.ID,
		Title:       request.Title,
		PosterPath:  request.PosterPath,
		ReleaseDate: releaseDate,
		VoteAverage: request.VoteAverage,
		Overview:    request.Overview,
		GenreIDs:    genreIDs,
	}
}

func parseMovieID(ec echo.Context) (int, error) {
	id, err := strconv.Atoi(ec.Param("id"))
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Movie ID must be a positive integer")
	}

	return id, nil
}
