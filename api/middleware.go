package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/KiloProjects/arena"
)

// SetupSession adds the session user, if any, to the request context.
func (s *API) SetupSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := getAuthHeader(r)
		user, err := s.base.SessionUser(r.Context(), token)
		if err != nil || user == nil {
			if err != nil && arena.ErrorCode(err) != 401 && !errors.Is(err, context.Canceled) {
				s.logger.WarnContext(r.Context(), "Couldn't get session user", slog.Any("err", err))
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), token, user)))
	})
}

// MustBeAuthed is middleware to make sure the user creating the request is authenticated
func (s *API) MustBeAuthed(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authedUser(r) == nil {
			errorData(w, "You must be authenticated to do this", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// MustBeHost is middleware to make sure the user creating the request is a host
func (s *API) MustBeHost(next http.Handler) http.Handler {
	return s.MustBeAuthed(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authedUser(r).IsHost() {
			errorData(w, "You must be a host to do this", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func (s *API) MustBeCompetitor(next http.Handler) http.Handler {
	return s.MustBeAuthed(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authedUser(r).Role != arena.RoleCompetitor {
			errorData(w, "Only teams can do this", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}))
}
