package jwt

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hbomb79/Marquee/pkg/logger"
	"github.com/hbomb79/Marquee/pkg/sync"
	"github.com/labstack/echo/v4"
)

var (
	ErrAuthTokenMissing = errors.New("request does not contain required auth token in cookies")
	ErrTokenRevoked     = errors.New("token has been revoked")

	log = logger.Get("JWT-Auth")
)

const (
	AuthTokenCookieName = "auth-token"
	AuthTokenLifespan   = time.Hour * 24 * 7

	contextUserKey = "user"
)

type (
	AuthenticatedUser struct {
		Username string
		TokenID  string
	}

	authTokenClaims struct {
		jwt.RegisteredClaims
		Username string `json:"username"`
	}

	jwtAuthProvider struct {
		secret []byte

		// This map (acting as a set) is used to keep track of
		// any token which we have explicitly revoked (for example,
		// when a user logs out, their token is revoked).
		//
		// NB: Tokens are removed from this set when they are cleaned up
		// (which happens automatically some time after their expiration).
		blacklistedTokens *sync.TypedSyncMap[string, struct{}]

		// Every token we've issued which has not yet expired, keyed by
		// token ID. Logging out revokes every one of these, as there is
		// only ever a single local user.
		issuedTokens *sync.TypedSyncMap[string, time.Time]
	}
)

// NewJwtAuth creates a new authentication provider which
// uses JWT tokens, signed using the secret provided, to authenticate
// requests. The secret should be >= 256 bits in size.
func NewJwtAuth(secret []byte) *jwtAuthProvider {
	return &jwtAuthProvider{
		secret,
		new(sync.TypedSyncMap[string, struct{}]),
		new(sync.TypedSyncMap[string, time.Time]),
	}
}

// GenerateTokenCookie generates an auth token for the username provided,
// returning it wrapped in a cookie ready to be set on the response.
func (auth *jwtAuthProvider) GenerateTokenCookie(username string) (*http.Cookie, error) {
	tokenID, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token ID: %w", err)
	}

	exp := time.Now().Add(AuthTokenLifespan)
	claims := &authTokenClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID.String(),
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(auth.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate auth token: %w", err)
	}

	auth.issuedTokens.Store(tokenID.String(), exp)
	auth.scheduleTokenCleanup(tokenID.String(), exp)

	return createTokenCookie(AuthTokenCookieName, "/", token, exp), nil
}

// GetJwtVerifierMiddleware returns a middleware which rejects requests
// which do not carry a valid, unrevoked auth token. The authenticated user
// is stored in the request context for handlers to retrieve using
// GetAuthenticatedUserFromContext.
func (auth *jwtAuthProvider) GetJwtVerifierMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ec echo.Context) error {
			cookie, err := ec.Cookie(AuthTokenCookieName)
			if err != nil || cookie.Value == "" {
				return echo.NewHTTPError(http.StatusUnauthorized).SetInternal(ErrAuthTokenMissing)
			}

			claims, err := auth.validateJWT(cookie.Value)
			if err != nil {
				log.Debugf("Rejecting request to %s: %v\n", ec.Request().URL.Path, err)
				return echo.NewHTTPError(http.StatusForbidden).SetInternal(err)
			}

			ec.Set(contextUserKey, &AuthenticatedUser{Username: claims.Username, TokenID: claims.ID})
			return next(ec)
		}
	}
}

// GetAuthenticatedUserFromContext provides a way for endpoints
// to extract the user from the context of their request. An error
// will be returned if no valid user can be found.
func (auth *jwtAuthProvider) GetAuthenticatedUserFromContext(ec echo.Context) (*AuthenticatedUser, error) {
	u, ok := ec.Get(contextUserKey).(*AuthenticatedUser)
	if !ok {
		return nil, errors.New("no user found in request context")
	}

	return u, nil
}

// RevokeAll revokes every token we have issued which has not yet expired.
func (auth *jwtAuthProvider) RevokeAll() {
	auth.issuedTokens.Range(func(tokenID string, _ time.Time) bool {
		auth.revokeToken(tokenID)
		return true
	})
}

// RevokeTokenInContext revokes the auth token in this request context,
// assuming one is provided and valid. A missing token/cookie is ignored.
func (auth *jwtAuthProvider) RevokeTokenInContext(ec echo.Context) {
	cookie, err := ec.Cookie(AuthTokenCookieName)
	if err != nil || cookie == nil {
		return
	}

	if claims, err := auth.validateJWT(cookie.Value); err == nil {
		auth.revokeToken(claims.ID)
	}
}

// ExpiredTokenCookie returns a cookie which, when set on a response,
// instructs the client to discard its auth token.
func (auth *jwtAuthProvider) ExpiredTokenCookie() *http.Cookie {
	return createTokenCookie(AuthTokenCookieName, "/", "", time.Unix(0, 0))
}

// validateJWT ensures that the provided token is:
//   - signed using the same secret/algorithm as we expect
//   - contains a username and token ID
//   - not expired
//   - not blacklisted
func (auth *jwtAuthProvider) validateJWT(token string) (*authTokenClaims, error) {
	claims := &authTokenClaims{}
	tkn, err := jwt.ParseWithClaims(
		token,
		claims,
		func(token *jwt.Token) (any, error) { return auth.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	if tkn == nil || !tkn.Valid {
		return nil, errors.New("failed to verify JWT: token is expired or invalid")
	}

	if claims.Username == "" || claims.ID == "" {
		return nil, errors.New("failed to verify JWT: missing username or token ID")
	}

	if _, ok := auth.blacklistedTokens.Load(claims.ID); ok {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// scheduleTokenCleanup removes the token from our issued/blacklisted
// sets shortly after it expires, as it will no longer be accepted anyway.
func (auth *jwtAuthProvider) scheduleTokenCleanup(tokenID string, expiry time.Time) {
	until := time.Until(expiry.Add(time.Second * 5))
	time.AfterFunc(until, func() {
		log.Debugf("Cleaning up token %s as it has expired (~5 seconds ago)\n", tokenID)
		auth.blacklistedTokens.Delete(tokenID)
		auth.issuedTokens.Delete(tokenID)
	})
}

func (auth *jwtAuthProvider) revokeToken(tokenID string) {
	log.Debugf("Revoking token %s\n", tokenID)
	auth.blacklistedTokens.Store(tokenID, struct{}{})
}

func createTokenCookie(name string, path string, token string, expiration time.Time) *http.Cookie {
	cookie := new(http.Cookie)
	cookie.Name = name
	cookie.Value = token
	cookie.Expires = expiration
	cookie.Path = path
	cookie.HttpOnly = true
	cookie.SameSite = http.SameSiteLaxMode

	return cookie
}
