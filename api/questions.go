package api

import "net/http"

func (s *API) questions(w http.ResponseWriter, r *http.Request) {
	returnData(w, s.base.Questions())
}

func (s *API) question(w http.ResponseWriter, r *http.Request) {
	idx, err := urlInt(r, "idx")
	if err != nil {
		statusError(w, err)
		return
	}
	q, err := s.base.Question(idx)
	if err != nil {
		statusError(w, err)
		return
	}
	returnData(w, q)
}

func (s *API) languages(w http.ResponseWriter, r *http.Request) {
	returnData(w, s.base.Languages())
}
