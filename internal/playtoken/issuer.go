// Package playtoken mints and verifies the short-lived capabilities that gate
// the streaming endpoint. A token binds one video to one user and is valid on
// possession alone until it expires; there is no revocation list.
package playtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TTL is the fixed lifetime of a play token.
const TTL = 5 * time.Minute

// Audience separates play tokens from identity tokens signed with the same key.
const Audience = "playback"

var (
	// ErrToken is the parent of every verification failure.
	ErrToken = errors.New("play token rejected")
	// ErrExpired indicates the signature verified but exp is in the past.
	ErrExpired = fmt.Errorf("%w: expired", ErrToken)
	// ErrInvalidSignature covers malformed, tampered or foreign tokens.
	ErrInvalidSignature = fmt.Errorf("%w: invalid signature", ErrToken)
)

// Claims are the verified contents of a play token.
type Claims struct {
	VideoID string `json:"videoId"`
	UserID  string `json:"userId"`
	jwt.RegisteredClaims
}

// Token is a freshly minted play token.
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// Issuer signs play tokens with HMAC-SHA256.
type Issuer struct {
	key     []byte
	NowFunc func() time.Time
}

// NewIssuer constructs an Issuer for the process-wide signing key.
func NewIssuer(key []byte) (*Issuer, error) {
	if len(key) == 0 {
		return nil, errors.New("playtoken: signing key must not be empty")
	}
	return &Issuer{key: append([]byte(nil), key...)}, nil
}

// Issue mints a token for the pair. It performs no authorization; callers must
// have obtained an ALLOW from the access engine first.
func (i *Issuer) Issue(videoID, userID string) (Token, error) {
	return i.issueAt(videoID, userID, i.now().Add(TTL))
}

func (i *Issuer) issueAt(videoID, userID string, expiresAt time.Time) (Token, error) {
	if videoID == "" {
		return Token{}, errors.New("playtoken: video id must be provided")
	}

	now := i.now()
	if expiresAt.After(now.Add(TTL)) {
		expiresAt = now.Add(TTL)
	}

	claims := Claims{
		VideoID: videoID,
		UserID:  userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return Token{}, fmt.Errorf("sign play token: %w", err)
	}

	return Token{Value: signed, ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks the signature first and expiry second. Entitlement is not
// re-checked: a verified token authorizes playback on possession.
func (i *Issuer) Verify(token string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !parsed.Valid || claims.VideoID == "" {
		return Claims{}, ErrInvalidSignature
	}

	return claims, nil
}

func (i *Issuer) now() time.Time {
	if i.NowFunc != nil {
		return i.NowFunc()
	}
	return time.Now()
}
