package api

import (
	"net/http"

	"github.com/KiloProjects/arena/sudoapi"
	"github.com/go-chi/chi/v5"
)

func (s *API) teams(w http.ResponseWriter, r *http.Request) {
	teams, err := s.base.Teams(r.Context())
	if err != nil {
		statusError(w, err)
		return
	}
	returnData(w, teams)
}

func (s *API) createTeam(w http.ResponseWriter, r *http.Request) {
	var args sudoapi.TeamCreation
	if err := parseJSONBody(r, &args); err != nil {
		statusError(w, err)
		return
	}
	team, err := s.base.CreateTeam(r.Context(), args)
	if err != nil {
		statusError(w, err)
		return
	}
	returnData(w, team)
}

func (s *API) updateTeam(w http.ResponseWriter, r *http.Request) {
	var args sudoapi.TeamUpdate
	if err := parseJSONBody(r, &args); err != nil {
		statusError(w, err)
		return
	}
	if err := s.base.UpdateTeam(r.Context(), chi.URLParam(r, "id"), args); err != nil {
		statusError(w, err)
		return
	}
	returnData(w, "Updated team")
}

func (s *API) deleteTeam(w http.ResponseWriter, r *http.Request) {
	if err := s.base.DeleteTeam(r.Context(), authedUser(r), chi.URLParam(r, "id")); err != nil {
		statusError(w, err)
		return
	}
	returnData(w, "Deleted team")
}

func (s *API) kickTeam(w http.ResponseWriter, r *http.Request) {
	if err := s.base.KickTeam(r.Context(), authedUser(r), chi.URLParam(r, "id")); err != nil {
		statusError(w, err)
		return
	}
	returnData(w, "Kicked team")
}

func (s *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := s.base.Leaderboard(r.Context())
	if err != nil {
		statusError(w, err)
		return
	}
	returnData(w, board)
}
