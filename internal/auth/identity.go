package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/raibee/backend/internal/logging"
	"github.com/raibee/backend/internal/models"
)

// Identity is the authenticated caller attached to a request.
type Identity struct {
	UserID string
	Name   string
	Email  string
	Role   models.Role
}

// DisplayName prefers the account name and falls back to the email address.
func (i Identity) DisplayName() string {
	if strings.TrimSpace(i.Name) != "" {
		return i.Name
	}
	return i.Email
}

type identityKey struct{}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity placed on ctx by Require.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UserID != ""
}

// Authenticator validates bearer access tokens.
type Authenticator interface {
	Authenticate(token string) (Identity, error)
}

// Require rejects requests without a valid bearer access token and otherwise
// places the caller's identity on the request context.
func Require(authenticator Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.FromContext(r.Context())

		token, ok := bearerToken(r)
		if !ok {
			writeUnauthorized(w)
			return
		}

		id, err := authenticator.Authenticate(token)
		if err != nil {
			if !errors.Is(err, ErrUnauthenticated) {
				logger.Error("authenticate request", "error", err)
			} else {
				logger.Warn("rejected access token", "error", err)
			}
			writeUnauthorized(w)
			return
		}

		ctx := WithIdentity(r.Context(), id)
		ctx = logging.WithLogger(ctx, logger.With("user_id", id.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="raibee"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
