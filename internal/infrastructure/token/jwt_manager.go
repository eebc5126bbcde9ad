package token

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	usecase "accounts/backend/internal/usecase/auth"
)

// ErrMalformedClaims is returned when a token verifies but lacks a session id.
var ErrMalformedClaims = errors.New("invalid token claims")

// JWTManager signs and validates the session handle given to clients.
type JWTManager struct {
	secret  []byte
	issuer  string
	nowFunc func() time.Time
}

// NewJWTManager constructs a manager with the provided secret and issuer.
func NewJWTManager(secret, issuer string) *JWTManager {
	return &JWTManager{
		secret:  []byte(secret),
		issuer:  issuer,
		nowFunc: time.Now,
	}
}

var _ usecase.TokenManager = (*JWTManager)(nil)

// Claims carries the session id; the user id rides in the subject.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Generate creates a signed JWT naming the session.
func (m *JWTManager) Generate(sessionID string, userID int64, ttl time.Duration) (string, error) {
	now := m.nowFunc().UTC()
	claims := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate parses and verifies the token returning the session id.
func (m *JWTManager) Validate(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.nowFunc),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return "", ErrMalformedClaims
	}
	return claims.SessionID, nil
}
