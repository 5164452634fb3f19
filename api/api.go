// Package api exposes the BaseAPI over HTTP and websockets.
package api

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/KiloProjects/arena"
	"github.com/KiloProjects/arena/sudoapi"
	"github.com/KiloProjects/arena/sudoapi/flags"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
)

type API struct {
	base     *sudoapi.BaseAPI
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func New(base *sudoapi.BaseAPI, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	s := &API{base: base, logger: logger}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      checkOrigin,
	}
	return s
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	allowed := flags.AllowedOrigins.Value()
	return origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}

func (s *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: flags.AllowedOrigins.Value(),
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.SetupSession)

	// upgraded connections must not go through the gzip writer
	r.Get("/ws", s.serveWS)

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })
		r.Use(middleware.Timeout(20 * time.Second))

		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			returnData(w, "pong")
		})

		r.Route("/auth", func(r chi.Router) {
			r.With(httprate.LimitByIP(flags.LoginRateLimit.Value(), time.Minute)).Post("/login", s.login)
			r.With(s.MustBeAuthed).Post("/logout", s.logout)
			r.With(s.MustBeAuthed).Get("/me", s.me)
		})

		r.Route("/clock", func(r chi.Router) {
			r.Get("/", s.clockStatus)
			r.With(s.MustBeHost).Patch("/", s.setClock)
		})

		r.Route("/teams", func(r chi.Router) {
			r.Use(s.MustBeAuthed)
			r.Get("/", s.teams)
			r.Group(func(r chi.Router) {
				r.Use(s.MustBeHost)
				r.Post("/", s.createTeam)
				r.Patch("/{id}", s.updateTeam)
				r.Delete("/{id}", s.deleteTeam)
				r.Post("/{id}/kick", s.kickTeam)
			})
		})

		r.Route("/questions", func(r chi.Router) {
			r.Use(s.MustBeAuthed)
			r.Get("/", s.questions)
			r.Get("/{idx}", s.question)
		})
		r.With(s.MustBeAuthed).Get("/languages", s.languages)

		r.Route("/testing", func(r chi.Router) {
			r.Use(s.MustBeAuthed)
			r.With(s.MustBeCompetitor).Get("/state", s.testingState)
			r.Get("/history", s.submissions)
			r.Get("/history/{id}", s.submission)
			r.With(s.MustBeCompetitor).Post("/run-tests", s.runTests)
		})

		r.Route("/announcements", func(r chi.Router) {
			r.Get("/", s.announcements)
			r.With(s.MustBeHost).Post("/", s.createAnnouncement)
			r.With(s.MustBeHost).Delete("/{id}", s.deleteAnnouncement)
		})

		r.Get("/leaderboard", s.leaderboard)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errorData(w, "Endpoint not found", 404)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		errorData(w, "Method not allowed", 405)
	})
	return r
}

func returnData(w http.ResponseWriter, retData any) {
	arena.StatusData(w, "success", retData, 200)
}

func errorData(w http.ResponseWriter, retData any, errCode int) {
	arena.StatusData(w, "error", retData, errCode)
}

// statusError writes err with the status code it carries.
func statusError(w http.ResponseWriter, err error) {
	arena.StatusData(w, "error", err, arena.ErrorCode(err))
}
