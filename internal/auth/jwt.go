// Package auth authenticates the configured admin user and issues the JWT
// bearer tokens the API checks on every request.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredentials is returned for a wrong username or password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Claims are the JWT claims carried by an issued token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTManager signs and validates access tokens.
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
}

// NewJWTManager creates a manager signing with the given secret.
func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
	}
}

// Generate issues a signed token for the given username.
func (m *JWTManager) Generate(username string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// Validate parses a token string and returns its claims.
func (m *JWTManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// TokenExpiry returns the expiry time a token issued now would carry.
func (m *JWTManager) TokenExpiry() time.Time {
	return time.Now().Add(m.tokenDuration)
}

// Authenticator checks login attempts against the configured admin account.
type Authenticator struct {
	username     string
	passwordHash string
	tokens       *JWTManager
}

// NewAuthenticator creates an authenticator for the admin account.
func NewAuthenticator(username, passwordHash string, tokens *JWTManager) *Authenticator {
	return &Authenticator{
		username:     username,
		passwordHash: passwordHash,
		tokens:       tokens,
	}
}

// Login verifies the credentials and returns a signed token.
func (a *Authenticator) Login(username, password string) (string, error) {
	nameOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passErr := VerifyPassword(password, a.passwordHash)
	if !nameOK || passErr != nil {
		return "", ErrInvalidCredentials
	}
	return a.tokens.Generate(username)
}

// Tokens exposes the token manager for request validation.
func (a *Authenticator) Tokens() *JWTManager {
	return a.tokens
}
