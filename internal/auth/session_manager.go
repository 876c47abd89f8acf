package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/raibee/backend/internal/models"
)

// Audience is carried by every identity access token. Play tokens use a
// different audience, so neither kind is accepted in place of the other.
const Audience = "api"

var (
	// ErrSessionNotFound indicates the provided refresh token does not map to an active session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshTokenExpired indicates the refresh token has expired and cannot be used.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrUnauthenticated indicates a missing, malformed or expired access token.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// SessionStore persists issued refresh tokens so they can survive process restarts.
type SessionStore interface {
	Save(ctx context.Context, session Session) error
	Find(ctx context.Context, refreshToken string) (Session, error)
	Rotate(ctx context.Context, oldToken string, next Session) error
	Delete(ctx context.Context, refreshToken string) error
}

// UserFinder resolves the account behind a refresh session.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// Session represents a refresh token issued to a user.
type Session struct {
	RefreshToken string
	UserID       string
	ExpiresAt    time.Time
}

type identityClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Manager issues signed access tokens and rotating refresh tokens.
type Manager struct {
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration

	store SessionStore
	users UserFinder

	NowFunc func() time.Time
}

// NewManager constructs a Manager that issues access and refresh tokens with the provided TTLs.
func NewManager(signingKey []byte, accessTTL, refreshTTL time.Duration, store SessionStore, users UserFinder) (*Manager, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("auth: signing key must not be empty")
	}
	if store == nil || users == nil {
		return nil, errors.New("auth: session store and user finder are required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	return &Manager{
		key:        append([]byte(nil), signingKey...),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		store:      store,
		users:      users,
	}, nil
}

func (m *Manager) now() time.Time {
	if m.NowFunc != nil {
		return m.NowFunc().UTC()
	}
	return time.Now().UTC()
}

// Issue creates a new pair of access and refresh tokens for the provided user.
func (m *Manager) Issue(ctx context.Context, user models.User) (models.SessionTokens, error) {
	tokens, session, err := m.mint(user)
	if err != nil {
		return models.SessionTokens{}, err
	}
	if err := m.store.Save(ctx, session); err != nil {
		return models.SessionTokens{}, fmt.Errorf("save session: %w", err)
	}
	return tokens, nil
}

// Refresh exchanges a refresh token for a new session token pair. The old
// refresh token stops working in the same step.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	if refreshToken == "" {
		return models.SessionTokens{}, ErrSessionNotFound
	}

	session, err := m.store.Find(ctx, refreshToken)
	if err != nil {
		return models.SessionTokens{}, err
	}

	if m.now().After(session.ExpiresAt) {
		_ = m.store.Delete(ctx, refreshToken)
		return models.SessionTokens{}, ErrRefreshTokenExpired
	}

	user, err := m.users.FindByID(ctx, session.UserID)
	if err != nil {
		return models.SessionTokens{}, fmt.Errorf("load session user: %w", err)
	}

	tokens, next, err := m.mint(user)
	if err != nil {
		return models.SessionTokens{}, err
	}
	if err := m.store.Rotate(ctx, refreshToken, next); err != nil {
		return models.SessionTokens{}, err
	}
	return tokens, nil
}

// Revoke removes the provided refresh token from the active session store.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	_ = m.store.Delete(ctx, refreshToken)
}

// Authenticate validates an access token and returns the identity it carries.
func (m *Manager) Authenticate(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(m.now),
	)

	var claims identityClaims
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.key, nil
	}); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	if claims.Subject == "" || !models.Role(claims.Role).Valid() {
		return Identity{}, fmt.Errorf("%w: incomplete claims", ErrUnauthenticated)
	}

	return Identity{
		UserID: claims.Subject,
		Name:   claims.Name,
		Email:  claims.Email,
		Role:   models.Role(claims.Role),
	}, nil
}

func (m *Manager) mint(user models.User) (models.SessionTokens, Session, error) {
	if user.ID == "" {
		return models.SessionTokens{}, Session{}, errors.New("user id must be provided")
	}

	now := m.now()
	accessExpires := now.Add(m.accessTTL)
	claims := identityClaims{
		Name:  user.Name,
		Email: user.Email,
		Role:  string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExpires),
		},
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return models.SessionTokens{}, Session{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, err := randomToken()
	if err != nil {
		return models.SessionTokens{}, Session{}, err
	}

	tokens := models.SessionTokens{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpires,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: now.Add(m.refreshTTL),
	}
	session := Session{
		RefreshToken: refreshToken,
		UserID:       user.ID,
		ExpiresAt:    tokens.RefreshExpiresAt,
	}
	return tokens, session, nil
}

func randomToken() (string, error) {
	const size = 32
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
