package api

import (
	"net/http"

	"github.com/KiloProjects/arena"
	"github.com/KiloProjects/arena/sudoapi"
	"github.com/go-chi/chi/v5"
)

func (s *API) testingState(w http.ResponseWriter, r *http.Request) {
	states, err := s.base.TestingState(r.Context(), authedUser(r).ID)
	if err != nil {
		statusError(w, err)
		return
	}
	returnData(w, states)
}

func (s *API) submissions(w http.ResponseWriter, r *http.Request) {
	var filter arena.SubmissionFilter
	if err := decoder.Decode(&filter, r.URL.Query()); err != nil {
		errorData(w, "Invalid query parameters", http.StatusBadRequest)
		return
	}
	subs, err := s.base.Submissions(r.Context(), authedUser(r), filter)
	if err != nil {
		statusError(w, err)
		return
	}
	returnData(w, subs)
}

func (s *API) submission(w http.ResponseWriter, r *http.Request) {
	sub, err := s.base.Submission(r.Context(), authedUser(r), chi.URLParam(r, "id"))
	if err != nil {
		statusError(w, err)
		return
	}
	returnData(w, sub)
}

func (s *API) runTests(w http.ResponseWriter, r *http.Request) {
	var args sudoapi.TestRunRequest
	if err := parseJSONBody(r, &args); err != nil {
		statusError(w, err)
		return
	}
	id, err := s.base.StartTestRun(r.Context(), authedUser(r), args)
	if err != nil {
		statusError(w, err)
		return
	}
	returnData(w, struct {
		ID string `json:"id"`
	}{id})
}

func (s *API) announcements(w http.ResponseWriter, r *http.Request) {
	anns, err := s.base.Announcements(r.Context())
	if err != nil {
		statusError(w, err)
		return
	}
	returnData(w, anns)
}

func (s *API) createAnnouncement(w http.ResponseWriter, r *http.Request) {
	var args sudoapi.AnnouncementCreation
	if err := parseJSONBody(r, &args); err != nil {
		statusError(w, err)
		return
	}
	ann, err := s.base.Announce(r.Context(), authedUser(r), args)
	if err != nil {
		statusError(w, err)
		return
	}
	returnData(w, ann)
}

func (s *API) deleteAnnouncement(w http.ResponseWriter, r *http.Request) {
	if err := s.base.DeleteAnnouncement(r.Context(), chi.URLParam(r, "id")); err != nil {
		statusError(w, err)
		return
	}
	returnData(w, "Deleted announcement")
}
