package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hbomb79/Marquee/pkg/logger"
)

var socketLogger = logger.Get("WebSocket")

const defaultWriteTimeout = 10 * time.Second

type SocketHandler func(*SocketHub, *SocketMessage) error

// SocketHub is the struct responsible for managing
// the websocket upgrading, connecting, pushing and
// receiving of messages.
type SocketHub struct {
	sync.RWMutex
	handlers           map[string]SocketHandler
	upgrader           *websocket.Upgrader
	clients            []*socketClient
	registerCh         chan *socketClient
	deregisterCh       chan *socketClient
	sendCh             chan *SocketMessage
	receiveCh          chan *SocketMessage
	doneCh             chan struct{}
	startedCh          chan struct{}
	connectionCallback func() map[string]any
	writeTimeout       time.Duration
	running            bool
}

// Returns a new SocketHub with the channels,
// maps and slices initialised to sane starting
// values
func New() *SocketHub {
	return &SocketHub{
		handlers: make(map[string]SocketHandler),
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		sendCh:       make(chan *SocketMessage),
		receiveCh:    make(chan *SocketMessage),
		registerCh:   make(chan *socketClient),
		deregisterCh: make(chan *socketClient),
		doneCh:       make(chan struct{}),
		startedCh:    make(chan struct{}),
		clients:      make([]*socketClient, 0),
		writeTimeout: defaultWriteTimeout,
	}
}

// WithWriteTimeout sets how long a single write to a client may take. A
// client which does not accept a message within this time is disconnected.
func (hub *SocketHub) WithWriteTimeout(timeout time.Duration) {
	hub.writeTimeout = timeout
}

// WithConnectionCallback sets a callback that will be executed each time a new client
// connects to this socketHub. This allows the client to be furnished with a payload
// of the servers current state, without having to wait for an UPDATE packet from the
// server (which may never come if the content does not change).
func (hub *SocketHub) WithConnectionCallback(callback func() map[string]any) {
	hub.connectionCallback = callback
}

// Binds a provided particular command to a particular socket handler
func (hub *SocketHub) BindCommand(command string, handler SocketHandler) *SocketHub {
	hub.handlers[command] = handler
	return hub
}

// Started returns a channel which is closed once the hub is accepting
// clients and messages.
func (hub *SocketHub) Started() <-chan struct{} {
	return hub.startedCh
}

// Start begins the socket hub by listening on all related channels
// for incoming clients and messages. A hub can only be started once; it
// runs until the context provided is cancelled.
func (hub *SocketHub) Start(ctx context.Context) {
	hub.Lock()
	if hub.running {
		hub.Unlock()
		socketLogger.Emit(logger.WARNING, "Attempting to start socketHub when already running! Ignoring request.\n")
		return
	} else if ctx.Err() != nil {
		hub.Unlock()
		socketLogger.Emit(logger.STOP, "Refusing to start socket hub as provided context is already cancelled\n")
		return
	}
	hub.running = true
	hub.Unlock()

	socketLogger.Emit(logger.INFO, "Opening SocketHub!\n")
	close(hub.startedCh)

	defer hub.close()
	for {
		select {
		case message := <-hub.sendCh:
			// Send the message provided - either by broadcasting to all, or
			// sending to only the client with a UUID matching the message 'target'
			if message.Target != nil {
				if _, client := hub.findClient(*message.Target); client != nil {
					if err := client.SendMessage(message, hub.writeTimeout); err != nil {
						socketLogger.Emit(logger.ERROR, "Failed to send message to target {%v}: %v\n", message.Target, err)
						hub.dropClient(client)
					}
				} else {
					socketLogger.Emit(logger.WARNING, "Attempted to send message to target {%v}, but no matching client was found.\n", message.Target)
				}

				continue
			}

			// No specific target
			hub.broadcastMessage(message)
		case message := <-hub.receiveCh:
			go hub.handleMessage(message)
		case client := <-hub.registerCh:
			// Register the client by pushing the received client in to the
			// 'clients' slice
			if idx, _ := hub.findClient(client.id); idx > -1 {
				socketLogger.Emit(logger.ERROR, "Attempted to register client that is already registered (duplicate uuid)! Illegal!\n")
				client.Close()

				continue
			}

			hub.clients = append(hub.clients, client)
			socketLogger.Emit(logger.NEW, "Registered new client {%v}\n", client.id)
		case client := <-hub.deregisterCh:
			// Deregister the client by removing the received client
			if idx, _ := hub.findClient(client.id); idx != -1 {
				hub.clients = append(hub.clients[:idx], hub.clients[idx+1:]...)
				socketLogger.Emit(logger.REMOVE, "Deregistered client {%v}\n", client.id)

				continue
			}

			socketLogger.Emit(logger.DEBUG, "Client {%v} was already deregistered\n", client.id)
		case <-ctx.Done():
			// Shutdown the socket hub, closing all clients and breaking this select loop
			socketLogger.Emit(logger.REMOVE, "Shutting down socket hub! Closing all clients.\n")
			return
		}
	}
}

// Send accepts a socket message and will emit this message on
// the send channel - message is ignored if hub is not running (see Start())
// A message provided that has a Target will only be sent to the client with
// a matching ID
func (hub *SocketHub) Send(message *SocketMessage) {
	if !hub.isRunning() {
		socketLogger.Emit(logger.WARNING, "Attempted to send message via socket hub, however the hub is offline. Ignoring message.\n")
		return
	}

	select {
	case hub.sendCh <- message:
	case <-hub.doneCh:
	}
}

// Upgrades a given HTTP request to a websocket and adds the new clients to the hub
func (hub *SocketHub) UpgradeToSocket(w http.ResponseWriter, r *http.Request) {
	if !hub.isRunning() {
		socketLogger.Emit(logger.ERROR, "Failed to upgrade incoming HTTP request to a websocket: SocketHub has not been started!\n")
		http.Error(w, "Socket hub is not running", http.StatusServiceUnavailable)
		return
	}

	// Try generate UUID first - if we do this later and it fails... we've already
	// upgraded the connection to a websocket.
	id, err := uuid.NewRandom()
	if err != nil {
		socketLogger.Emit(logger.ERROR, "Failed to generate UUID for new connection - aborting!\n")
		return
	}

	// UUID success, upgrade the connection to a websocket
	sock, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		socketLogger.Emit(logger.ERROR, "Failed to upgrade incoming HTTP request to a websocket: %v\n", err)
		return
	}

	client := &socketClient{id: id, socket: sock}

	// Register the client and open the read loop
	select {
	case hub.registerCh <- client:
	case <-hub.doneCh:
		client.Close()
		return
	}

	// Send welcome message to this client with a composed
	// map of new-client properties.
	// These props can be used to supply the client with it's
	// initial state
	body := make(map[string]any)
	if hub.connectionCallback != nil {
		for k, v := range hub.connectionCallback() {
			body[k] = v
		}
	}
	body["client"] = id

	hub.Send(&SocketMessage{
		Title:  "CONNECTION_ESTABLISHED",
		Body:   body,
		Target: &id,
		Type:   Welcome,
	})

	// Ensure the client is deregistered once it's read loop closes
	// If client.Read finishes, it's either because the client disconnected
	// or an error occured - either way, we need to deregister it.
	defer func() {
		select {
		case hub.deregisterCh <- client:
		case <-hub.doneCh:
		}
		client.Close()
	}()

	// Start the read loop for the client
	if err := client.Read(hub.receiveCh, hub.doneCh); err != nil {
		socketLogger.Emit(logger.DEBUG, "Client {%v} closed: %v\n", client.id, err)
	}
}

func (hub *SocketHub) isRunning() bool {
	hub.RLock()
	defer hub.RUnlock()
	return hub.running
}

// Closes the sockethub by deregistering and closing all
// connected clients and sockets
func (hub *SocketHub) close() {
	hub.Lock()
	hub.running = false
	hub.Unlock()
	close(hub.doneCh)

	// Close all the clients
	for _, client := range hub.clients {
		client.Close()
	}

	// Reset the clients slice
	hub.clients = nil
	socketLogger.Emit(logger.STOP, "Socket hub is now closed!\n")
}

// handleMessage is an internal method that accepts a message
// and wil forward the command to the bound handler if one
// exists. If none exists, the client is told the command is unknown
func (hub *SocketHub) handleMessage(command *SocketMessage) {
	if command.Type != Command {
		socketLogger.Emit(logger.WARNING, "SocketHub received a message from client {%v} of type {%v} - this type is not allowed, only commands can be sent to the server!\n", command.Origin, command.Type)
		return
	}

	replyWithError := func(err string) {
		hub.Send(command.FormReply("COMMAND_FAILURE", map[string]any{"error": err}, ErrorResponse))
	}

	if handler, ok := hub.handlers[command.Title]; ok {
		if err := handler(hub, command); err != nil {
			socketLogger.Emit(logger.ERROR, "Handler for command '%v' returned error - %v\n", command.Title, err)
			replyWithError(err.Error())
		} else {
			socketLogger.Emit(logger.SUCCESS, "Handler for command '%v' executed successfully\n", command.Title)
		}

		return
	}

	replyWithError("Unknown command")
	socketLogger.Emit(logger.WARNING, "No handler found for command '%v'\n", command.Title)
}

// findClient returns a socketClient with the matching uuid if
// one can be found - if not, nil is returned. Additionally, the index
// of the client inside of the client list is returned as well.
func (hub *SocketHub) findClient(id uuid.UUID) (int, *socketClient) {
	for idx, client := range hub.clients {
		if client.id == id {
			return idx, client
		}
	}

	return -1, nil
}

// broadcastMessage sends the provided message to every connected
// client - useful for pushing new state to all clients interested.
// A client which fails to receive the message is disconnected.
func (hub *SocketHub) broadcastMessage(message *SocketMessage) {
	failed := make([]*socketClient, 0)
	for _, client := range hub.clients {
		if err := client.SendMessage(message, hub.writeTimeout); err != nil {
			socketLogger.Emit(logger.WARNING, "Failed to broadcast %s to client {%v}: %v\n", message.Title, client.id, err)
			failed = append(failed, client)
		}
	}

	for _, client := range failed {
		hub.dropClient(client)
	}
}

// dropClient removes a client which could not be written to and closes
// its socket. The clients read loop then exits and its deregistration
// finds nothing left to remove.
func (hub *SocketHub) dropClient(client *socketClient) {
	if idx, _ := hub.findClient(client.id); idx != -1 {
		hub.clients = append(hub.clients[:idx], hub.clients[idx+1:]...)
	}

	client.Close()
	socketLogger.Emit(logger.REMOVE, "Dropped unresponsive client {%v}\n", client.id)
}
