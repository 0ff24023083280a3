package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/hbomb79/Marquee/internal/auth"
	"github.com/hbomb79/Marquee/internal/event"
	"github.com/hbomb79/Marquee/internal/media"
	"github.com/hbomb79/Marquee/internal/session"
	"github.com/hbomb79/Marquee/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type socketCatalog struct{}

func (socketCatalog) FetchTrending(context.Context) ([]media.Movie, error) { return nil, nil }
func (socketCatalog) FetchMovieDetails(context.Context, string) (*media.MovieDetails, error) {
	return nil, nil
}
func (socketCatalog) FetchRecommendations(context.Context, string) ([]media.Movie, error) {
	return nil, nil
}
func (socketCatalog) FetchGenres(context.Context) ([]media.Genre, error) { return nil, nil }

func (socketCatalog) SearchMovies(_ context.Context, query string, page int, _ media.Filters) (*media.SearchPage, error) {
	return &media.SearchPage{
		Page:         page,
		TotalPages:   3,
		TotalResults: 3,
		Results:      []media.Movie{{ID: page, Title: query, ReleaseDate: media.UnknownReleaseDate, GenreIDs: []int{}}},
	}, nil
}

// dialGateway starts the gateway's socket hub, logs in and connects a
// websocket client. The welcome message is consumed and returned.
func dialGateway(t *testing.T) (*session.Store, *gorilla.Conn, map[string]any) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := event.New()
	backend := storage.NewMemoryStorage()
	store := session.New(ctx, socketCatalog{}, backend, bus)

	config := &RestConfig{SessionSecret: "a-secret-which-is-at-least-256-bits-long"}
	gateway := NewRestGateway(config, bus, auth.New(ctx, backend, bus), store)
	go gateway.socket.Start(ctx)
	<-gateway.socket.Started()

	server := httptest.NewServer(gateway)
	t.Cleanup(func() {
		cancel()
		server.Close()
		store.Close()
	})

	resp, err := http.Post(server.URL+ApiRoot+"/auth/login/", "application/json", strings.NewReader(`{"username":"ben","password":"pw"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	header := http.Header{}
	for _, c := range resp.Cookies() {
		header.Add("Cookie", (&http.Cookie{Name: c.Name, Value: c.Value}).String())
	}

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + ApiRoot + "/activity/ws/"
	conn, _, err := gorilla.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	welcome := readSocketMessage(t, conn)
	require.Equal(t, "CONNECTION_ESTABLISHED", welcome["title"])

	return store, conn, welcome
}

func readSocketMessage(t *testing.T, conn *gorilla.Conn) map[string]any {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntil reads messages until one matches the predicate, failing the
// test if none does within a handful of messages.
func readUntil(t *testing.T, conn *gorilla.Conn, predicate func(map[string]any) bool) map[string]any {
	for range 20 {
		if msg := readSocketMessage(t, conn); predicate(msg) {
			return msg
		}
	}

	require.FailNow(t, "expected socket message was never received")
	return nil
}

func snapshotOf(msg map[string]any) map[string]any {
	args, _ := msg["arguments"].(map[string]any)
	snapshot, _ := args["snapshot"].(map[string]any)
	return snapshot
}

func Test_Socket_RequiresAuth(t *testing.T) {
	bus := event.New()
	backend := storage.NewMemoryStorage()
	store := session.New(context.Background(), socketCatalog{}, backend, bus)
	defer store.Close()

	gateway := NewRestGateway(&RestConfig{SessionSecret: "secret"}, bus, auth.New(context.Background(), backend, bus), store)
	server := httptest.NewServer(gateway)
	defer server.Close()

	_, resp, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+ApiRoot+"/activity/ws/", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func Test_Socket_WelcomeCarriesSnapshot(t *testing.T) {
	_, _, welcome := dialGateway(t)

	snapshot := snapshotOf(welcome)
	require.NotNil(t, snapshot)
	assert.Equal(t, "idle", snapshot["search"].(map[string]any)["status"])
}

func Test_Socket_SearchCommandBroadcastsUpdates(t *testing.T) {
	store, conn, _ := dialGateway(t)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"title":     COMMAND_SEARCH,
		"id":        1,
		"type":      1,
		"arguments": map[string]any{"query": "alien", "filters": map[string]any{"year": 1979}},
	}))

	reply := readUntil(t, conn, func(msg map[string]any) bool { return msg["title"] == "COMMAND_SUCCESS" })
	assert.EqualValues(t, 1, reply["id"])
	assert.Equal(t, "ready", snapshotOf(reply)["search"].(map[string]any)["status"])

	snapshot := store.Snapshot()
	assert.Equal(t, "alien", snapshot.Search.Query)
	assert.Equal(t, 1979, snapshot.Search.Filters.Year)

	require.NoError(t, conn.WriteJSON(map[string]any{"title": COMMAND_LOAD_MORE, "id": 2, "type": 1}))
	readUntil(t, conn, func(msg map[string]any) bool {
		if msg["title"] != TITLE_SESSION_UPDATE {
			return false
		}
		search := snapshotOf(msg)["search"].(map[string]any)
		return search["status"] == "ready" && search["page"] == float64(2)
	})
}

func Test_Socket_ToggleFavorite(t *testing.T) {
	store, conn, _ := dialGateway(t)

	toggle := func(id int) map[string]any {
		require.NoError(t, conn.WriteJSON(map[string]any{
			"title":     COMMAND_TOGGLE_FAVORITE,
			"id":        id,
			"type":      1,
			"arguments": map[string]any{"movie": map[string]any{"id": 603, "title": "The Matrix"}},
		}))

		return readUntil(t, conn, func(msg map[string]any) bool {
			return msg["title"] == "COMMAND_SUCCESS" && msg["id"] == float64(id)
		})
	}

	toggle(1)
	require.True(t, store.IsFavorite(603))
	assert.Equal(t, media.UnknownReleaseDate, store.Favorites()[0].ReleaseDate)

	toggle(2)
	assert.False(t, store.IsFavorite(603))

	require.NoError(t, conn.WriteJSON(map[string]any{
		"title":     COMMAND_TOGGLE_FAVORITE,
		"id":        3,
		"type":      1,
		"arguments": map[string]any{"movie": map[string]any{"title": "No ID"}},
	}))
	failure := readUntil(t, conn, func(msg map[string]any) bool { return msg["id"] == float64(3) })
	assert.Equal(t, "COMMAND_FAILURE", failure["title"])
}

func Test_Socket_StalledClientDoesNotBlockStore(t *testing.T) {
	// The connected client never reads, so broadcasts back up behind it
	store, _, _ := dialGateway(t)

	title := strings.Repeat("x", 2<<10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for id := 1; id <= 150; id++ {
			store.AddToFavorites(media.Movie{ID: id, Title: title})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "favorite mutations were blocked by an unresponsive socket client")
	}
	assert.Len(t, store.Favorites(), 150)
}
