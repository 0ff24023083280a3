package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/hbomb79/Marquee/internal/api"
	"github.com/hbomb79/Marquee/internal/auth"
	"github.com/hbomb79/Marquee/internal/event"
	"github.com/hbomb79/Marquee/internal/http/tmdb"
	"github.com/hbomb79/Marquee/internal/session"
	"github.com/hbomb79/Marquee/internal/storage"
	"github.com/hbomb79/Marquee/pkg/logger"
	"github.com/labstack/gommon/random"
)

var log = logger.Get("Core")

const generatedSecretLength = 64

type (
	RunnableService interface {
		Run(context.Context) error
	}

	// marqueeImpl represents the top-level object for the server, and is
	// responsible for initialising the storage backend, catalog client,
	// session store, authentication and the REST gateway.
	marqueeImpl struct {
		eventBus event.EventCoordinator
		config   MarqueeConfig

		storage     storage.Storage
		catalog     *tmdb.Client
		store       *session.Store
		authService *auth.Service
		restGateway RunnableService
	}
)

// New constructs Marquee and all of it's services using the config provided. The
// storage backend is opened eagerly so that the persisted session (favorites, last
// search and current user) is available before any request is served.
func New(ctx context.Context, config MarqueeConfig) (*marqueeImpl, error) {
	logger.SetMinLoggingLevel(logger.ParseLevel(config.Logging.Level).Level())
	log.Emit(logger.DEBUG, "Bootstrapping Marquee services (storage driver %q)\n", config.Storage.Driver)

	if config.Api.SessionSecret == "" {
		log.Emit(logger.WARNING, "No session secret configured; generating one. Auth tokens will not survive a restart.\n")
		config.Api.SessionSecret = random.String(generatedSecretLength)
	}

	store, err := storage.New(config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	marquee := &marqueeImpl{
		eventBus: event.New(),
		config:   config,
		storage:  store,
		catalog:  tmdb.NewClient(config.Tmdb),
	}

	marquee.store = session.New(ctx, marquee.catalog, marquee.storage, marquee.eventBus)
	marquee.authService = auth.New(ctx, marquee.storage, marquee.eventBus)
	marquee.restGateway = api.NewRestGateway(&marquee.config.Api, marquee.eventBus, marquee.authService, marquee.store)

	marquee.eventBus.RegisterHandlerFunction(event.USER_LOGIN, func(_ event.Event, payload event.Payload) {
		log.Emit(logger.INFO, "User %v logged in\n", payload)
	})
	marquee.eventBus.RegisterHandlerFunction(event.USER_LOGOUT, func(_ event.Event, payload event.Payload) {
		log.Emit(logger.INFO, "User %v logged out\n", payload)
	})

	return marquee, nil
}

// Run will start all of Marquee by bringing up the REST gateway, and warming
// the session with the trending movies and genre taxonomy.
//
// This function will not return until Marquee is stopped.
// To stop Marquee, the provided context must be cancelled. Errors from which Marquee cannot recover
// will also cause Marquee to stop.
func (marquee *marqueeImpl) Run(parent context.Context) error {
	defer marquee.shutdown()

	ctx, cancel := context.WithCancelCause(parent)
	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel(err)
	}

	wg := &sync.WaitGroup{}
	marquee.spawnAsyncService(ctx, wg, marquee.restGateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "Marquee services spawned!\n")

	go marquee.warmSession(ctx)

	wg.Wait()
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}

// warmSession fetches the trending movies and the genre taxonomy so that
// the first client to connect does not have to wait on them. Failures are
// recorded in the session like any other catalog failure.
func (marquee *marqueeImpl) warmSession(ctx context.Context) {
	marquee.store.FetchTrending(ctx)
	if genres, err := marquee.store.Genres(ctx); err == nil {
		log.Emit(logger.DEBUG, "Genre taxonomy loaded (%d genres)\n", len(genres))
	}
}

// spawnAsyncService will run the provided function/service as it's own
// go-routine, ensuring that the Marquee service waitgroup is updated correctly
func (marquee *marqueeImpl) spawnAsyncService(ctx context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(ctx); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}

func (marquee *marqueeImpl) shutdown() {
	log.Emit(logger.STOP, "Closing session store and storage backend...\n")
	marquee.store.Close()
	if err := marquee.storage.Close(); err != nil {
		log.Emit(logger.ERROR, "Failed to close storage: %v\n", err)
	}
}
