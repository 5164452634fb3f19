package api

import (
	"net/http"

	"github.com/KiloProjects/arena"
)

type loginForm struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *API) login(w http.ResponseWriter, r *http.Request) {
	var form loginForm
	if err := parseJSONBody(r, &form); err != nil {
		statusError(w, err)
		return
	}
	if form.Username == "" || form.Password == "" {
		errorData(w, "Username and password are required", http.StatusBadRequest)
		return
	}
	resp, err := s.base.Login(r.Context(), form.Username, form.Password)
	if err != nil {
		statusError(w, err)
		return
	}
	returnData(w, resp)
}

func (s *API) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.base.Logout(r.Context(), sessionToken(r), authedUser(r)); err != nil {
		statusError(w, err)
		return
	}
	returnData(w, "Logged out")
}

func (s *API) me(w http.ResponseWriter, r *http.Request) {
	returnData(w, authedUser(r))
}

type clockForm struct {
	IsPaused *bool `json:"isPaused"`
}

func (s *API) clockStatus(w http.ResponseWriter, r *http.Request) {
	returnData(w, s.base.ClockStatus())
}

func (s *API) setClock(w http.ResponseWriter, r *http.Request) {
	var form clockForm
	if err := parseJSONBody(r, &form); err != nil {
		statusError(w, err)
		return
	}
	if form.IsPaused == nil {
		statusError(w, arena.Statusf(400, "isPaused is required"))
		return
	}
	returnData(w, s.base.SetPaused(r.Context(), authedUser(r), *form.IsPaused))
}
