package websocket

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type socketClient struct {
	id     uuid.UUID
	socket *websocket.Conn
}

// SendMessage writes the message to the clients socket, failing if the
// write does not complete within the timeout provided. A failed write
// leaves the connection unusable.
func (client *socketClient) SendMessage(message *SocketMessage, timeout time.Duration) error {
	if err := client.socket.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}

	return client.socket.WriteJSON(message)
}

// Read starts a read-loop on the clients websocket connection, emitting
// all received messages on the channel provided. If the connection
// experiences an error, or the JSON unmarshalling fails, this error will be returned
// and consequently the read loop will close. It is the responsibility of the caller
// to de-register the client once the connection closes.
func (client *socketClient) Read(receiveCh chan *SocketMessage, doneCh <-chan struct{}) error {
	for {
		var recv SocketMessage
		if err := client.socket.ReadJSON(&recv); err != nil {
			return err
		}

		// Set the message origin to point to this clients uuid
		origin := client.id
		recv.Origin = &origin
		select {
		case receiveCh <- &recv:
		case <-doneCh:
			return nil
		}
	}
}

// Close will close this clients socket
func (client *socketClient) Close() {
	client.socket.Close()
}
