package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/hbomb79/Marquee/internal/api/jwt"
	"github.com/hbomb79/Marquee/internal/auth"
	"github.com/hbomb79/Marquee/pkg/logger"
	"github.com/labstack/echo/v4"
)

var (
	errUnauthorized = echo.NewHTTPError(http.StatusUnauthorized)
	log             = logger.Get("AuthController")
)

type (
	Service interface {
		Login(ctx context.Context, username string, password string) (*auth.User, error)
		Logout(ctx context.Context) error
		CurrentUser() *auth.User
	}

	AuthProvider interface {
		GenerateTokenCookie(username string) (*http.Cookie, error)
		GetJwtVerifierMiddleware() echo.MiddlewareFunc
		GetAuthenticatedUserFromContext(ec echo.Context) (*jwt.AuthenticatedUser, error)
		RevokeAll()
		ExpiredTokenCookie() *http.Cookie
	}

	LoginRequest struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	UserDto struct {
		Username string `json:"username"`
	}

	Controller struct {
		service      Service
		authProvider AuthProvider
	}
)

func New(authProvider AuthProvider, service Service) *Controller {
	return &Controller{service, authProvider}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/login/", controller.login)
	eg.POST("/logout/", controller.logout)
	eg.GET("/user/", controller.currentUser, controller.authProvider.GetJwtVerifierMiddleware())
}

// login accepts a POST request containing the username and password in
// the body. Any non-blank pair is accepted: the user is persisted as the
// current user and an auth token is stored in the response cookies.
func (controller *Controller) login(ec echo.Context) error {
	var request LoginRequest
	if err := ec.Bind(&request); err != nil {
		log.Warnf("Failed to authenticate due to error: %v\n", err)
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid body")
	}

	user, err := controller.service.Login(ec.Request().Context(), request.Username, request.Password)
	if err != nil {
		if errors.Is(err, auth.ErrMissingCredentials) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		log.Errorf("Failed to login: %v\n", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to login")
	}

	cookie, err := controller.authProvider.GenerateTokenCookie(user.Username)
	if err != nil {
		log.Errorf("Failed to generate auth token: %v\n", err)
		return errUnauthorized
	}

	ec.SetCookie(cookie)
	return ec.JSON(http.StatusOK, UserDto{Username: user.Username})
}

// logout forgets the current user and revokes every token issued to them.
// The auth cookie is expired in the response.
func (controller *Controller) logout(ec echo.Context) error {
	if err := controller.service.Logout(ec.Request().Context()); err != nil {
		log.Errorf("Failed to logout: %v\n", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to logout")
	}

	controller.authProvider.RevokeAll()
	ec.SetCookie(controller.authProvider.ExpiredTokenCookie())
	return ec.NoContent(http.StatusOK)
}

func (controller *Controller) currentUser(ec echo.Context) error {
	authUser, err := controller.authProvider.GetAuthenticatedUserFromContext(ec)
	if err != nil {
		log.Errorf("Failed to get current user due to error %v\n", err)
		return errUnauthorized
	}

	user := controller.service.CurrentUser()
	if user == nil || user.Username != authUser.Username {
		log.Warnf("Token for %q presented, but they are no longer logged in\n", authUser.Username)
		return errUnauthorized
	}

	return ec.JSON(http.StatusOK, UserDto{Username: user.Username})
}
