package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"trane/store"
	"trane/types"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const (
	tokenKindAccess  = "access"
	tokenKindRefresh = "refresh"

	accessTokenTTL  = time.Hour
	refreshTokenTTL = 7 * 24 * time.Hour
)

// AuthService issues and verifies the bearer tokens carried on API calls
type AuthService interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (types.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (types.TokenPair, error)
	Verify(token string) (string, error)
}

type authService struct {
	store  *store.Store
	secret []byte
}

// NewAuthService creates an auth service signing tokens with the given secret
func NewAuthService(s *store.Store, secret string) AuthService {
	return &authService{store: s, secret: []byte(secret)}
}

func hashPassword(salt, password string) string {
	sum := sha256.Sum256([]byte(salt + ":" + password))
	return hex.EncodeToString(sum[:])
}

// Register creates a new user account
func (a *authService) Register(ctx context.Context, username, password string) error {
	if len(username) == 0 {
		return fmt.Errorf("username is required")
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	salt := uuid.New().String()
	return a.store.CreateUser(ctx, username, salt, hashPassword(salt, password))
}

// Login verifies credentials and issues an access/refresh token pair
func (a *authService) Login(ctx context.Context, username, password string) (types.TokenPair, error) {
	salt, storedHash, err := a.store.GetUser(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return types.TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return types.TokenPair{}, err
	}

	if subtle.ConstantTimeCompare([]byte(storedHash), []byte(hashPassword(salt, password))) != 1 {
		return types.TokenPair{}, ErrInvalidCredentials
	}

	return a.issuePair(username)
}

// Refresh rotates a valid refresh token into a fresh pair
func (a *authService) Refresh(ctx context.Context, refreshToken string) (types.TokenPair, error) {
	username, kind, err := a.parse(refreshToken)
	if err != nil || kind != tokenKindRefresh {
		return types.TokenPair{}, ErrInvalidToken
	}
	return a.issuePair(username)
}

// Verify checks an access token and returns the username it was issued to
func (a *authService) Verify(token string) (string, error) {
	username, kind, err := a.parse(token)
	if err != nil || kind != tokenKindAccess {
		return "", ErrInvalidToken
	}
	return username, nil
}

// tokenClaims carries the username and token type on top of the
// registered JWT claims.
type tokenClaims struct {
	Kind string `json:"token_type"`
	jwt.RegisteredClaims
}

func (a *authService) issuePair(username string) (types.TokenPair, error) {
	now := time.Now()
	access, err := a.sign(username, tokenKindAccess, now, now.Add(accessTokenTTL))
	if err != nil {
		return types.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := a.sign(username, tokenKindRefresh, now, now.Add(refreshTokenTTL))
	if err != nil {
		return types.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return types.TokenPair{Access: access, Refresh: refresh}, nil
}

func (a *authService) sign(username, kind string, now, expiry time.Time) (string, error) {
	claims := tokenClaims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
			ID:        uuid.New().String(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *authService) parse(token string) (username, kind string, err error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", "", ErrInvalidToken
	}
	return claims.Subject, claims.Kind, nil
}
