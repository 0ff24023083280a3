package trending

import (
	"context"
	"net/http"

	"github.com/hbomb79/Marquee/internal/session"
	"github.com/labstack/echo/v4"
)

type (
	Store interface {
		FetchTrending(ctx context.Context) session.Snapshot
		Snapshot() session.Snapshot
	}

	Controller struct{ store Store }
)

func New(store Store) *Controller {
	return &Controller{store}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
	eg.POST("/refresh/", controller.refresh)
}

// list returns the trending movies currently held by the session, which
// may be stale if the most recent refresh failed.
func (controller *Controller) list(ec echo.Context) error {
	return ec.JSON(http.StatusOK, controller.store.Snapshot().Trending)
}

// refresh fetches the trending movies from the catalog. A failure is
// reported in the returned snapshot's error, with the previous trending
// list still present. The fetch is not cancelled if the client goes away,
// as the result is shared with every other client of the session.
func (controller *Controller) refresh(ec echo.Context) error {
	return ec.JSON(http.StatusOK, controller.store.FetchTrending(context.WithoutCancel(ec.Request().Context())))
}
