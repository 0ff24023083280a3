// Package auth tracks the local Marquee user. There is no account
// system behind it: any non-empty username and password pair is
// accepted, and the username is persisted so that the user remains
// logged in across restarts until they explicitly log out.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hbomb79/Marquee/internal/event"
	"github.com/hbomb79/Marquee/internal/storage"
	"github.com/hbomb79/Marquee/pkg/logger"
)

const UserKey = "user"

var (
	ErrMissingCredentials = errors.New("Please enter both username and password")

	log = logger.Get("Auth")
)

type (
	User struct {
		Username string `json:"username"`
	}

	Service struct {
		sync.Mutex
		storage    storage.Storage
		dispatcher event.EventDispatcher
		current    *User
	}
)

// New constructs the auth service, restoring the logged in user (if any)
// from storage. A corrupt record is treated as being logged out.
func New(ctx context.Context, store storage.Storage, dispatcher event.EventDispatcher) *Service {
	service := &Service{storage: store, dispatcher: dispatcher}

	raw, err := store.Get(ctx, UserKey)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			log.Warnf("Failed to read persisted user (%v), starting logged out\n", err)
		}
		return service
	}

	var user User
	if err := json.Unmarshal([]byte(raw), &user); err != nil || strings.TrimSpace(user.Username) == "" {
		log.Warnf("Persisted user record is corrupt, starting logged out\n")
		return service
	}

	log.Emit(logger.INFO, "Restored session for user %q\n", user.Username)
	service.current = &user
	return service
}

// Login accepts any non-blank username and password, persisting the
// username as the current user.
func (service *Service) Login(ctx context.Context, username string, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return nil, ErrMissingCredentials
	}

	user := &User{Username: username}
	raw, err := json.Marshal(user)
	if err != nil {
		return nil, err
	}

	service.Lock()
	if err := service.storage.Set(ctx, UserKey, string(raw)); err != nil {
		service.Unlock()
		return nil, fmt.Errorf("failed to persist user %s: %w", username, err)
	}
	service.current = user
	service.Unlock()

	log.Emit(logger.SUCCESS, "User %q logged in\n", username)
	service.dispatch(event.USER_LOGIN, username)
	return &User{Username: username}, nil
}

// Logout forgets the current user. Logging out while logged out is a no-op.
func (service *Service) Logout(ctx context.Context) error {
	service.Lock()
	current := service.current
	if err := service.storage.Remove(ctx, UserKey); err != nil {
		service.Unlock()
		return fmt.Errorf("failed to remove persisted user: %w", err)
	}
	service.current = nil
	service.Unlock()

	if current != nil {
		log.Emit(logger.INFO, "User %q logged out\n", current.Username)
		service.dispatch(event.USER_LOGOUT, current.Username)
	}

	return nil
}

// CurrentUser returns the logged in user, or nil if nobody is logged in.
func (service *Service) CurrentUser() *User {
	service.Lock()
	defer service.Unlock()

	if service.current == nil {
		return nil
	}

	return &User{Username: service.current.Username}
}

func (service *Service) dispatch(ev event.Event, username string) {
	if service.dispatcher != nil {
		service.dispatcher.Dispatch(ev, username)
	}
}
