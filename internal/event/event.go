// A collection of event names and common methods used to handle the events, typically
// redirecting the handling to a gateway method or other method via the `Handler` interface.
package event

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/hbomb79/Marquee/pkg/logger"
)

var log = logger.Get("Events")

// Events emitted by the session store and auth service which other, silo'd parts
// of Marquee (the websocket gateway, mostly) react to.
type (
	Event         string
	Payload       any
	HandlerMethod func(Event, Payload)

	HandlerChannel chan HandlerEvent
	HandlerEvent   struct {
		Event   Event
		Payload Payload
	}

	EventDispatcher interface {
		Dispatch(Event, Payload)
	}

	EventHandler interface {
		RegisterAsyncHandlerFunction(Event, HandlerMethod)
		RegisterHandlerFunction(Event, HandlerMethod)
		RegisterHandlerChannel(HandlerChannel, ...Event)
	}

	EventCoordinator interface {
		EventDispatcher
		EventHandler
	}

	eventHandler struct {
		sync.RWMutex
		fnHandlers   map[Event][]handlerMethod
		chanHandlers map[Event][]HandlerChannel
	}

	handlerMethod struct {
		handle HandlerMethod
		async  bool
	}
)

const (
	// Payload: the uint64 version of the new session snapshot
	SESSION_UPDATE Event = "session:update"

	// Payload: the username (string) of the user logging in/out
	USER_LOGIN  Event = "user:login"
	USER_LOGOUT Event = "user:logout"
)

func New() EventCoordinator {
	return &eventHandler{
		fnHandlers:   make(map[Event][]handlerMethod),
		chanHandlers: make(map[Event][]HandlerChannel),
	}
}

// RegisterHandlerChannel takes an event type and a channel and will send Event messages on
// the channel any time a Dispatch for the provided event occurs.
// This method can be used multiple times for different events on the same channel.
//
// If the channel is BLOCKED when the event bus attempts to send the message on the handler channel,
// then the thread dispatching the event will also be BLOCKED. It is recomended to buffer the handler channels
// appropiately to avoid dispatcher-side blocking.
func (handler *eventHandler) RegisterHandlerChannel(handle HandlerChannel, events ...Event) {
	handler.Lock()
	defer handler.Unlock()
	for _, event := range events {
		handler.chanHandlers[event] = append(handler.chanHandlers[event], handle)
	}
}

// RegisterHandlerFunction takes an event type and a handler method which will be stored
// and called with the payload for the event whenever it is provided to the 'Dispatch' method.
// The handle provided should be guaranteed to return quickly, else other threads calling
// Dispatch on this event bus will be blocked.
func (handler *eventHandler) RegisterHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, false})
}

// RegisterAsyncHandlerFunction accepts an Event and a HandlerMethod which will be stored and
// called inside of a goroutine when the event is handled.
func (handler *eventHandler) RegisterAsyncHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, true})
}

func (handler *eventHandler) registerHandlerMethod(event Event, handle handlerMethod) {
	handler.Lock()
	defer handler.Unlock()
	handler.fnHandlers[event] = append(handler.fnHandlers[event], handle)
}

// Dispatch takes an event type and a payload and dispatches the payload to the handlers
// registered for the event type provided.
// Note that this method WILL block if a synchronous handler function is blocking, or if channel
// handlers are blocked.
func (handler *eventHandler) Dispatch(event Event, payload Payload) {
	if err := handler.validatePayload(event, payload); err != nil {
		log.Emit(logger.ERROR, "Dispatch for event %v FAILED validation: %v\n", event, err)
		return
	}

	handler.RLock()
	fnHandles := handler.fnHandlers[event]
	chanHandles := handler.chanHandlers[event]
	handler.RUnlock()

	for _, handle := range fnHandles {
		if handle.async {
			go handle.handle(event, payload)
		} else {
			handle.handle(event, payload)
		}
	}

	if len(chanHandles) > 0 {
		payload := HandlerEvent{event, payload}
		for _, handle := range chanHandles {
			handle <- payload
		}
	}
}

// validatePayload ensures that the payload provided is valid for the event specified. An error
// will be returned if the payload is not valid, and the event should not be sent to the registered
// handlers in this case.
func (handler *eventHandler) validatePayload(event Event, payload Payload) error {
	var payloadTypeName string
	if t := reflect.TypeOf(payload); t != nil {
		payloadTypeName = t.Name()
	} else {
		payloadTypeName = "Nil"
	}

	switch event {
	case SESSION_UPDATE:
		if _, ok := payload.(uint64); !ok {
			return fmt.Errorf("illegal payload (type %s) for %s event. Expected uint64 payload", payloadTypeName, event)
		}

		return nil
	case USER_LOGIN, USER_LOGOUT:
		if _, ok := payload.(string); !ok {
			return fmt.Errorf("illegal payload (type %s) for %s event. Expected string payload", payloadTypeName, event)
		}

		return nil
	}

	return errors.New("event type not recognized for validation")
}
