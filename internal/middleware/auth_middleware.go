package middleware

import (
	"errors"
	"net/http"
	"strings"

	"notes-backend/pkg/jwt"
	"notes-backend/pkg/response"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const unauthorizedMessage = "unauthorized"

var (
	ErrMissingToken   = errors.New("missing bearer token")
	ErrInvalidSubject = errors.New("token subject is not a user id")
)

type TokenVerifier interface {
	Verify(token string) (*jwt.Claims, error)
}

// AuthenticatedHandlerFunc receives the user id taken from a verified token.
// It is the only identity a protected handler may act on.
type AuthenticatedHandlerFunc func(w http.ResponseWriter, r *http.Request, userID string)

// Gate verifies bearer tokens in front of protected handlers.
type Gate struct {
	verifier TokenVerifier
	logger   *zap.Logger
}

func NewGate(verifier TokenVerifier, logger *zap.Logger) *Gate {
	return &Gate{
		verifier: verifier,
		logger:   logger,
	}
}

// Require runs next only for requests carrying a valid token. Every
// rejection gets the same 401 body, whatever the cause.
func (g *Gate) Require(next AuthenticatedHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := g.Authenticate(r)
		if err != nil {
			g.logger.Debug("request rejected",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			g.Reject(w)
			return
		}

		next(w, r, userID)
	}
}

// Reject writes the 401 every failed authentication gets.
func (g *Gate) Reject(w http.ResponseWriter) {
	response.Unauthorized(w, unauthorizedMessage)
}

// Authenticate verifies the bearer token of r and returns its subject.
func (g *Gate) Authenticate(r *http.Request) (string, error) {
	token, ok := BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return "", ErrMissingToken
	}

	return g.verify(token)
}

// AuthenticateQuery is Authenticate with a fallback to the token query
// parameter, for clients that cannot set headers on a websocket handshake.
func (g *Gate) AuthenticateQuery(r *http.Request) (string, error) {
	if token, ok := BearerToken(r.Header.Get("Authorization")); ok {
		return g.verify(token)
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		return "", ErrMissingToken
	}
	return g.verify(token)
}

func (g *Gate) verify(token string) (string, error) {
	claims, err := g.verifier.Verify(token)
	if err != nil {
		return "", err
	}

	if _, err := uuid.Parse(claims.UserID()); err != nil {
		return "", ErrInvalidSubject
	}

	return claims.UserID(), nil
}

// BearerToken extracts the credential from an Authorization header value.
// The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
