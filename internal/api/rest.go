package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Marquee/internal/api/auth"
	"github.com/hbomb79/Marquee/internal/api/favorites"
	"github.com/hbomb79/Marquee/internal/api/genres"
	"github.com/hbomb79/Marquee/internal/api/jwt"
	"github.com/hbomb79/Marquee/internal/api/movies"
	"github.com/hbomb79/Marquee/internal/api/search"
	"github.com/hbomb79/Marquee/internal/api/state"
	"github.com/hbomb79/Marquee/internal/api/trending"
	"github.com/hbomb79/Marquee/internal/event"
	"github.com/hbomb79/Marquee/internal/http/websocket"
	"github.com/hbomb79/Marquee/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const ApiRoot = "/api/marquee/v1"

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr      string `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080"`
		SessionSecret string `yaml:"session_secret" env:"API_SESSION_SECRET"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// sessionStore represents a union of all the controller store requirements
	sessionStore interface {
		state.Store
		trending.Store
		search.Store
		movies.Store
		genres.Store
		favorites.Store
	}

	// The RestGateway is a thin-wrapper around the Echo HTTP router. It's sole responsbility
	// is to create the routes Marquee exposes, manage ongoing web socket connections and events,
	// and to enforce authentication middleware where applicable.
	RestGateway struct {
		*broadcaster
		config              *RestConfig
		ec                  *echo.Echo
		socket              *websocket.SocketHub
		authController      controller
		stateController     controller
		trendingController  controller
		searchController    controller
		moviesController    controller
		genresController    controller
		favoritesController controller
	}
)

// NewRestGateway constructs the Echo router and populates it with all the
// routes defined by the various controllers. The session store backs every
// movie related controller, and the event handler is used to learn of
// session changes which must be pushed to connected websocket clients.
func NewRestGateway(
	config *RestConfig,
	eventBus event.EventHandler,
	authService auth.Service,
	store sessionStore,
) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true

	validate := validator.New()
	authProvider := jwt.NewJwtAuth([]byte(config.SessionSecret))
	socket := websocket.New()
	gateway := &RestGateway{
		broadcaster:         newBroadcaster(socket, store),
		config:              config,
		ec:                  ec,
		socket:              socket,
		authController:      auth.New(authProvider, authService),
		stateController:     state.New(store),
		trendingController:  trending.New(store),
		searchController:    search.New(validate, store),
		moviesController:    movies.New(store),
		genresController:    genres.New(store),
		favoritesController: favorites.New(validate, store),
	}

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Pre(middleware.AddTrailingSlash())

	eventBus.RegisterAsyncHandlerFunction(event.SESSION_UPDATE, gateway.handleSessionUpdate)
	gateway.bindCommands()

	authGroup := ec.Group(ApiRoot + "/auth")
	gateway.authController.SetRoutes(authGroup)

	// Everything other than authentication requires a valid auth token
	protected := ec.Group(ApiRoot, authProvider.GetJwtVerifierMiddleware())
	protected.GET("/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	gateway.stateController.SetRoutes(protected.Group("/state"))
	gateway.trendingController.SetRoutes(protected.Group("/trending"))
	gateway.searchController.SetRoutes(protected.Group("/search"))
	gateway.moviesController.SetRoutes(protected.Group("/movies"))
	gateway.genresController.SetRoutes(protected.Group("/genres"))
	gateway.favoritesController.SetRoutes(protected.Group("/favorites"))

	return gateway
}

// ServeHTTP allows the gateway to be mounted directly, which is primarily
// useful for testing the routes without binding to a port.
func (gateway *RestGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gateway.ec.ServeHTTP(w, r)
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	// Start echo router
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Emit(logger.INFO, "Listening on %s\n", gateway.config.HostAddr)
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ctxCancel(err)
		}
	}()

	// Start thread to listen for context cancellation
	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	// Start websocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}
