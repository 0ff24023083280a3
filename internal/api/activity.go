package api

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hbomb79/Marquee/internal/event"
	"github.com/hbomb79/Marquee/internal/http/websocket"
	"github.com/hbomb79/Marquee/internal/media"
	"github.com/hbomb79/Marquee/internal/session"
	"github.com/hbomb79/Marquee/pkg/logger"
)

const (
	TITLE_SESSION_UPDATE = "SESSION_UPDATE"

	COMMAND_SEARCH          = "SEARCH"
	COMMAND_LOAD_MORE       = "LOAD_MORE"
	COMMAND_TOGGLE_FAVORITE = "TOGGLE_FAVORITE"
)

type (
	searchArguments struct {
		Query   string        `json:"query"`
		Filters media.Filters `json:"filters"`
	}

	toggleFavoriteArguments struct {
		Movie media.Movie `json:"movie"`
	}

	broadcasterStore interface {
		Snapshot() session.Snapshot
		Search(ctx context.Context, query string, filters media.Filters) session.Snapshot
		LoadMore(ctx context.Context) session.Snapshot
		AddToFavorites(movie media.Movie) session.Snapshot
		RemoveFromFavorites(movieID int) session.Snapshot
		IsFavorite(movieID int) bool
	}

	// broadcaster pushes session changes to every connected websocket
	// client, and drives the session store from the commands those clients
	// send. Updates are coalesced: the latest snapshot is always the one
	// sent, and a snapshot older than one already sent is dropped.
	broadcaster struct {
		sync.Mutex
		socketHub   *websocket.SocketHub
		store       broadcasterStore
		lastVersion uint64
	}
)

func newBroadcaster(socketHub *websocket.SocketHub, store broadcasterStore) *broadcaster {
	b := &broadcaster{socketHub: socketHub, store: store}
	socketHub.WithConnectionCallback(func() map[string]any {
		return map[string]any{"snapshot": b.store.Snapshot()}
	})

	return b
}

func (hub *broadcaster) handleSessionUpdate(_ event.Event, payload event.Payload) {
	version, ok := payload.(uint64)
	if !ok {
		return
	}

	if err := hub.BroadcastSessionUpdate(version); err != nil {
		log.Emit(logger.DEBUG, "Skipping session update broadcast: %v\n", err)
	}
}

// BroadcastSessionUpdate sends the current session snapshot to all clients,
// unless that snapshot has already been sent. The version provided is the
// one which triggered the update; the snapshot sent may be newer.
func (hub *broadcaster) BroadcastSessionUpdate(version uint64) error {
	hub.Lock()
	defer hub.Unlock()

	snapshot := hub.store.Snapshot()
	if snapshot.Version <= hub.lastVersion {
		return fmt.Errorf("snapshot %d already broadcast (update %d)", snapshot.Version, version)
	}

	hub.lastVersion = snapshot.Version
	hub.broadcast(TITLE_SESSION_UPDATE, map[string]any{"snapshot": snapshot})
	return nil
}

func (hub *broadcaster) broadcast(title string, body map[string]any) {
	hub.socketHub.Send(&websocket.SocketMessage{
		Title: title,
		Body:  body,
		Type:  websocket.Update,
	})
}

// bindCommands registers the commands clients may send over the socket.
// Commands reply with the resulting snapshot; the change is also broadcast
// to every client via the usual session update.
func (hub *broadcaster) bindCommands() {
	hub.socketHub.
		BindCommand(COMMAND_SEARCH, hub.handleSearchCommand).
		BindCommand(COMMAND_LOAD_MORE, hub.handleLoadMoreCommand).
		BindCommand(COMMAND_TOGGLE_FAVORITE, hub.handleToggleFavoriteCommand)
}

func (hub *broadcaster) handleSearchCommand(socket *websocket.SocketHub, command *websocket.SocketMessage) error {
	var args searchArguments
	if err := command.DecodeArguments(&args); err != nil {
		return err
	}

	snapshot := hub.store.Search(context.Background(), args.Query, args.Filters)
	socket.Send(command.FormReply("COMMAND_SUCCESS", map[string]any{"snapshot": snapshot}, websocket.Response))
	return nil
}

func (hub *broadcaster) handleLoadMoreCommand(socket *websocket.SocketHub, command *websocket.SocketMessage) error {
	snapshot := hub.store.LoadMore(context.Background())
	socket.Send(command.FormReply("COMMAND_SUCCESS", map[string]any{"snapshot": snapshot}, websocket.Response))
	return nil
}

func (hub *broadcaster) handleToggleFavoriteCommand(socket *websocket.SocketHub, command *websocket.SocketMessage) error {
	var args toggleFavoriteArguments
	if err := command.DecodeArguments(&args); err != nil {
		return err
	}
	if args.Movie.ID <= 0 {
		return errors.New("movie.id must be a positive integer")
	}

	var snapshot session.Snapshot
	if hub.store.IsFavorite(args.Movie.ID) {
		snapshot = hub.store.RemoveFromFavorites(args.Movie.ID)
	} else {
		if args.Movie.ReleaseDate == "" {
			args.Movie.ReleaseDate = media.UnknownReleaseDate
		}
		if args.Movie.GenreIDs == nil {
			args.Movie.GenreIDs = []int{}
		}
		snapshot = hub.store.AddToFavorites(args.Movie)
	}

	socket.Send(command.FormReply("COMMAND_SUCCESS", map[string]any{"snapshot": snapshot}, websocket.Response))
	return nil
}
