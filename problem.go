package arena

import (
	"slices"

	"github.com/gosimple/slug"
)

type TestCase struct {
	Input   string `json:"input"`
	Output  string `json:"output"`
	Visible bool   `json:"visible"`
}

// Problem is one graded exercise of the packet. Problems are read from config
// and never change while the competition runs.
type Problem struct {
	Index       int        `json:"index"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Tests       []TestCase `json:"tests"`
	// Languages restricts the languages accepted for this problem. Empty means any.
	Languages []string `json:"languages,omitempty"`
	Points    *float64 `json:"points,omitempty"`
}

func (p *Problem) Slug() string {
	return slug.Make(p.Title)
}

func (p *Problem) AllowsLanguage(name string) bool {
	return len(p.Languages) == 0 || slices.Contains(p.Languages, name)
}

// VisibleTests returns the tests shown to competitors, with their original indices.
func (p *Problem) VisibleTests() ([]TestCase, []int) {
	var tests []TestCase
	var indices []int
	for i, t := range p.Tests {
		if t.Visible {
			tests = append(tests, t)
			indices = append(indices, i)
		}
	}
	return tests, indices
}

// Packet is the full set of problems of a competition.
type Packet struct {
	Title    string     `json:"title"`
	Problems []*Problem `json:"problems"`
}

func (p *Packet) Problem(idx int) *Problem {
	if idx < 0 || idx >= len(p.Problems) {
		return nil
	}
	return p.Problems[idx]
}
