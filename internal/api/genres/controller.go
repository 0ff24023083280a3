package genres

import (
	"context"
	"net/http"

	"github.com/hbomb79/Marquee/internal/media"
	"github.com/labstack/echo/v4"
)

type (
	Store interface {
		Genres(ctx context.Context) ([]media.Genre, error)
	}

	Controller struct{ store Store }
)

func New(store Store) *Controller {
	return &Controller{store}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
}

func (controller *Controller) list(ec echo.Context) error {
	genres, err := controller.store.Genres(context.WithoutCancel(ec.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	return ec.JSON(http.StatusOK, genres)
}
