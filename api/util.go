package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/KiloProjects/arena"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/schema"
)

var decoder *schema.Decoder

func init() {
	decoder = schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
}

type ctxKey string

const (
	userKey  ctxKey = "user"
	tokenKey ctxKey = "token"
)

func authedUser(r *http.Request) *arena.User {
	user, _ := r.Context().Value(userKey).(*arena.User)
	return user
}

func sessionToken(r *http.Request) string {
	token, _ := r.Context().Value(tokenKey).(string)
	return token
}

func withSession(ctx context.Context, token string, user *arena.User) context.Context {
	ctx = context.WithValue(ctx, tokenKey, token)
	return context.WithValue(ctx, userKey, user)
}

// getAuthHeader accepts both "Bearer <token>" and a bare token.
func getAuthHeader(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return h
}

func parseJSONBody[T any](r *http.Request, output *T) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(output); err != nil {
		return arena.Statusf(400, "Invalid JSON input.")
	}
	return nil
}

func urlInt(r *http.Request, name string) (int, error) {
	val, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, arena.Statusf(400, "Invalid %s", name)
	}
	return val, nil
}
