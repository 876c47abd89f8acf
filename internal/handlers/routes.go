package handlers

import (
	"net/http"

	"github.com/raibee/backend/internal/auth"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Database      Pinger
	Users         UserStore
	Sessions      SessionManager
	Authenticator auth.Authenticator
	LoginLimiter  RateLimiter
	Videos        VideoStore
	Blobs         BlobWriter
	Cipher        Encrypter
	Access        Authorizer
	PlayTokens    PlayTokenIssuer
	Streams       Streamer
	Purchases     PurchaseRecorder
	Observer      VideoObserver
	Metrics       http.Handler

	Platform       string
	MaxUploadBytes int64
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Database: deps.Database}
	authn := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Limiter: deps.LoginLimiter}
	videos := VideoHandler{
		Videos:         deps.Videos,
		Blobs:          deps.Blobs,
		Cipher:         deps.Cipher,
		Access:         deps.Access,
		Tokens:         deps.PlayTokens,
		Streams:        deps.Streams,
		Observer:       deps.Observer,
		Platform:       deps.Platform,
		MaxUploadBytes: deps.MaxUploadBytes,
	}
	purchases := PurchaseHandler{Purchases: deps.Purchases}

	protected := func(h http.HandlerFunc) http.Handler {
		return auth.Require(deps.Authenticator, h)
	}

	mux.HandleFunc("/healthz", health.Handle)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	mux.HandleFunc("POST /api/auth/register", authn.Register)
	mux.HandleFunc("POST /api/auth/login", authn.Login)
	mux.HandleFunc("POST /api/auth/refresh", authn.Refresh)

	mux.Handle("POST /api/videos/upload", protected(videos.Upload))
	mux.HandleFunc("GET /api/videos", videos.List)
	mux.Handle("GET /api/videos/watch/{id}", protected(videos.Watch))
	mux.HandleFunc("GET /api/videos/stream/{id}", videos.Stream)

	mux.Handle("POST /api/purchases/record", protected(purchases.Record))
}
