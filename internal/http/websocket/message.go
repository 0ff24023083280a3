package websocket

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

type socketMessageType int

const (
	Update socketMessageType = iota
	Command
	Response
	ErrorResponse
	Welcome
)

// SocketMessage is a struct that allows us to define the
// command that has been passed through the web socket.
// The Id field can be used when replying to this message
// so the receiving client is aware of which message this reply
// is for. Origin is much for the same - it allows us to
// send the reply to the websocket attached to the client
// with the matching UUID
type SocketMessage struct {
	Title  string            `json:"title"`
	Body   map[string]any    `json:"arguments"`
	Id     int               `json:"id"`
	Type   socketMessageType `json:"type"`
	Origin *uuid.UUID        `json:"-"`
	Target *uuid.UUID        `json:"-"`
}

// DecodeArguments decodes the message body in to the target provided (which
// must be a pointer to a struct), matching keys using the targets 'json'
// struct tags. Numbers arriving as JSON floats are converted to the
// targets integer fields where required.
func (message *SocketMessage) DecodeArguments(target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      false,
		Result:           target,
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(message.Body); err != nil {
		return fmt.Errorf("invalid arguments for command %s: %w", message.Title, err)
	}

	return nil
}

// FormReply is a method on a SocketMessage that will
// return a NEW message that has the same origin/id as
// the original message, but with a new (caller provided) title,
// type, and arguments.
func (message *SocketMessage) FormReply(replyTitle string, replyBody map[string]any, replyType socketMessageType) *SocketMessage {
	if replyBody != nil {
		replyBody["command"] = message.Body
	}

	return &SocketMessage{
		Title:  replyTitle,
		Body:   replyBody,
		Type:   replyType,
		Id:     message.Id,
		Target: message.Origin,
	}
}
