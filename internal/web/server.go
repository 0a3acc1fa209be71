package web

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/schema"
	"github.com/lomect/accountd/internal/auth"
	"github.com/lomect/accountd/internal/errorz"
	"github.com/lomect/accountd/internal/krypto"
)

// SessionResolver resolves session tokens to identities.
type SessionResolver interface {
	Resolve(ctx context.Context, token krypto.Token) (string, error)
}

// ServerDeps are the dependencies for the server.
type ServerDeps struct {
	Logger      *slog.Logger
	AuthService *auth.Service
	Sessions    SessionResolver
}

type Server struct {
	deps    *ServerDeps
	mux     *http.ServeMux
	decoder *schema.Decoder
	handler http.Handler
}

func NewServer(deps *ServerDeps) *Server {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	s := &Server{
		deps:    deps,
		mux:     http.NewServeMux(),
		decoder: decoder,
	}

	// Most endpoints below are created using the map functions.
	// These return handlers that map between HTTP requests, target functions and JSON responses.
	// The request mapping and response writing is customizable.

	svc := deps.AuthService

	{
		const route = "POST /api/v1/auth/register"
		h := mapRequest(s, svc.Register).request(parsedJSON(parseRegistration))
		s.public(route, h)
	}

	{
		const route = "POST /api/v1/auth/login"
		h := mapBoth(s, svc.Login).request(parsedJSON(parseCredentials))
		h.response(writeToken[auth.Credentials])
		s.public(route, h)
	}

	{
		const route = "POST /api/v1/auth/resend"
		h := mapRequest(s, svc.ResendConfirmation).request(parsedJSON(parseResend))
		s.public(route, h)
	}

	// Confirm endpoints. The GET variant is the link in the confirmation email.
	{
		const route = "POST /api/v1/auth/confirm"
		h := mapBoth(s, svc.Confirm).request(parsedJSON(parseTokenRequest))
		h.response(writeToken[krypto.Token])
		s.public(route, h)
	}
	{
		const route = "GET /api/v1/auth/confirm/{token}"
		h := mapBoth(s, svc.Confirm).request(func(r *http.Request) (krypto.Token, error) {
			return parseTokenRequest(tokenRequest{Token: r.PathValue("token")})
		})
		h.response(writeToken[krypto.Token])
		s.public(route, h)
	}

	{
		const route = "POST /api/v1/auth/reset-password"
		h := mapRequest(s, func(ctx context.Context, pwd auth.Password) error {
			// authenticated guarantees the identity is present.
			identity, _ := IdentityFromContext(ctx)
			return svc.ResetPassword(ctx, identity, pwd)
		}).request(parsedJSON(parseResetPassword))
		s.authenticated(route, h)
	}

	{
		const route = "GET /api/v1/users"
		h := mapBoth(s, func(ctx context.Context, q usersQuery) ([]userResponse, error) {
			users, err := svc.ListUsers(ctx, q.userQuery())
			if err != nil {
				return nil, err
			}
			return usersResponse(users), nil
		}).request(func(r *http.Request) (usersQuery, error) {
			return queryRequest[usersQuery](s, r)
		})
		s.authenticated(route, h)
	}

	// Anything else gets an enveloped 404 instead of the mux's plain text one.
	s.public("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.handleError(w, r, errorz.ErrNotFound)
	}))

	// Wrap the mux with global middlewares.
	middlewares := []func(http.Handler) http.Handler{
		s.logRequests,
	}
	s.handler = s.mux
	for i := len(middlewares) - 1; i >= 0; i-- {
		s.handler = middlewares[i](s.handler)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func writeToken[IN any](r result[IN, krypto.Token]) error {
	r.s.writeOK(r.w, r.r, tokenResponse{Token: r.out})
	return nil
}

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.deps.Logger.Info("request",
			"method", r.Method,
			"path", logPath(r),
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// logPath returns the request path with the token of a confirm link redacted.
// The query is left out.
func logPath(r *http.Request) string {
	const confirmPrefix = "/api/v1/auth/confirm/"
	if strings.HasPrefix(r.URL.Path, confirmPrefix) {
		return confirmPrefix + krypto.SecretMarker
	}
	return r.URL.Path
}
