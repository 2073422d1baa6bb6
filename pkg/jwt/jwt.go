package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultClockSkew = 30 * time.Second
	MinSecretLength  = 32
)

var (
	// ErrInvalidToken is returned by Verify for every kind of rejection:
	// malformed input, bad signature, wrong issuer or audience, expiry.
	ErrInvalidToken = errors.New("invalid token")

	ErrWeakSecret = fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)
)

type Claims struct {
	Username string `json:"unique_name,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() string {
	return c.Subject
}

type Options struct {
	Issuer    string
	Audience  string
	Secret    string
	Lifetime  time.Duration
	ClockSkew time.Duration

	// Now overrides the clock used for issuing and verifying. Defaults to time.Now.
	Now func() time.Time
}

// Manager issues and verifies HS256 tokens bound to a single issuer and
// audience.
type Manager struct {
	issuer    string
	audience  string
	key       []byte
	lifetime  time.Duration
	clockSkew time.Duration
	now       func() time.Time
	parser    *jwt.Parser
}

func NewManager(opts Options) (*Manager, error) {
	if len(opts.Secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if opts.Issuer == "" || opts.Audience == "" {
		return nil, errors.New("issuer and audience are required")
	}
	if opts.Lifetime <= 0 {
		return nil, errors.New("token lifetime must be positive")
	}

	skew := opts.ClockSkew
	if skew <= 0 {
		skew = DefaultClockSkew
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	m := &Manager{
		issuer:    opts.Issuer,
		audience:  opts.Audience,
		key:       []byte(opts.Secret),
		lifetime:  opts.Lifetime,
		clockSkew: skew,
		now:       now,
	}

	m.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithTimeFunc(m.now),
	)

	return m, nil
}

func (m *Manager) DefaultLifetime() time.Duration {
	return m.lifetime
}

func (m *Manager) ClockSkew() time.Duration {
	return m.clockSkew
}

// Issue signs a token for userID that is valid from now until expiresAt.
func (m *Manager) Issue(userID, username string, expiresAt time.Time) (string, error) {
	if userID == "" {
		return "", errors.New("subject is required")
	}

	now := m.now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Verify checks signature, issuer, audience and time bounds, and returns
// the claims of a valid token.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := m.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
