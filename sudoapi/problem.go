package sudoapi

import (
	"github.com/KiloProjects/arena"
	"github.com/KiloProjects/arena/eval"
)

type VisibleTest struct {
	Index  int    `json:"index"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Question is a problem as shown to competitors. Hidden tests are never exposed.
type Question struct {
	Index       int           `json:"index"`
	Title       string        `json:"title"`
	Slug        string        `json:"slug"`
	Description string        `json:"description"`
	Languages   []string      `json:"languages"`
	Points      float64       `json:"points"`
	Tests       []VisibleTest `json:"tests"`
	TotalTests  int           `json:"totalTests"`
}

func (s *BaseAPI) question(pb *arena.Problem) *Question {
	q := &Question{
		Index:       pb.Index,
		Title:       pb.Title,
		Slug:        pb.Slug(),
		Description: pb.Description,
		Languages:   []string{},
		Points:      s.defaultPoints,
		Tests:       []VisibleTest{},
		TotalTests:  len(pb.Tests),
	}
	if pb.Points != nil {
		q.Points = *pb.Points
	}
	for _, lang := range s.langs.List() {
		if pb.AllowsLanguage(lang.Name) {
			q.Languages = append(q.Languages, lang.Name)
		}
	}
	tests, indices := pb.VisibleTests()
	for i, t := range tests {
		q.Tests = append(q.Tests, VisibleTest{Index: indices[i], Input: t.Input, Output: t.Output})
	}
	return q
}

func (s *BaseAPI) Questions() []*Question {
	qs := make([]*Question, 0, len(s.packet.Problems))
	for _, pb := range s.packet.Problems {
		qs = append(qs, s.question(pb))
	}
	return qs
}

func (s *BaseAPI) Question(idx int) (*Question, error) {
	pb := s.packet.Problem(idx)
	if pb == nil {
		return nil, arena.Statusf(404, "Question not found")
	}
	return s.question(pb), nil
}

func (s *BaseAPI) Languages() []*eval.Language {
	return s.langs.List()
}
