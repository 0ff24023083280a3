package state

import (
	"net/http"

	"github.com/hbomb79/Marquee/internal/session"
	"github.com/labstack/echo/v4"
)

type (
	Store interface {
		Snapshot() session.Snapshot
	}

	Controller struct{ store Store }
)

func New(store Store) *Controller {
	return &Controller{store}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.get)
}

// get returns the current session snapshot, allowing a client to
// render the full state without waiting for a websocket update.
func (controller *Controller) get(ec echo.Context) error {
	return ec.JSON(http.StatusOK, controller.store.Snapshot())
}
