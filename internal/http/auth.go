package httpapi

import (
	"context"
	"net/http"
	"strings"

	"fieldwork-backend-go/internal/models"
)

type contextKey string

const ctxActor contextKey = "actor"

// OptionalAuth resolves a bearer token into the request's actor. Requests
// without a token continue as anonymous; a token that does not verify is
// rejected outright.
func (s *Server) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, present := bearerToken(r)
		if !present {
			next.ServeHTTP(w, r)
			return
		}
		actor, err := s.Service.Authenticate(r.Context(), token)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxActor, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !CurrentActor(r).Authenticated() {
			WriteError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func CurrentActor(r *http.Request) models.Actor {
	if actor, ok := r.Context().Value(ctxActor).(models.Actor); ok {
		return actor
	}
	return models.Actor{}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", false
	}
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		return "", true
	}
	return strings.TrimSpace(auth[7:]), true
}
