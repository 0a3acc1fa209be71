package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/lomect/accountd/internal/auth"
	"github.com/lomect/accountd/internal/errorz"
	"github.com/lomect/accountd/internal/krypto"
)

func (s *Server) public(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// authenticated only lets requests with a valid session token through.
// The identity of the session is available via IdentityFromContext.
func (s *Server) authenticated(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := krypto.ParseToken(bearerToken(r))
		if err != nil {
			s.handleError(w, r, auth.ErrInvalidToken)
			return
		}

		identity, err := s.deps.Sessions.Resolve(r.Context(), token)
		if err != nil {
			s.handleError(w, r, errorz.Dependency("cache", err))
			return
		}

		if identity == "" {
			s.handleError(w, r, auth.ErrInvalidToken)
			return
		}

		ctx := ContextWithIdentity(r.Context(), identity)
		handler.ServeHTTP(w, r.WithContext(ctx))
	}))
}

// bearerToken returns the token from the Authorization header. Both
// "Bearer <token>" and a bare token are accepted.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))

	scheme, token, ok := strings.Cut(h, " ")
	if ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}

	return h
}

type ctxKey string

const identityKey ctxKey = "accountdIdentity"

func ContextWithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(identityKey).(string)
	if !ok || identity == "" {
		return "", false
	}

	return identity, true
}
