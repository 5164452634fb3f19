// Package events delivers competition events to hook scripts, webhooks and Discord.
package events

import (
	"strings"
	"time"

	"github.com/KiloProjects/arena"
)

// Event is something worth telling the outside world about.
type Event interface {
	// Kind is the kebab-case name of the event, such as "on-check-in"
	Kind() string
	MarshalJSON() ([]byte, error)
}

type CheckIn struct {
	Name string    `json:"name"`
	Time time.Time `json:"time"`
}

func (e CheckIn) Kind() string { return "on-check-in" }

func (e CheckIn) MarshalJSON() ([]byte, error) {
	type plain CheckIn
	return arena.TagJSON(e.Kind(), plain(e))
}

type Pause struct {
	PausedBy string    `json:"pausedBy"`
	Time     time.Time `json:"time"`
}

func (e Pause) Kind() string { return "on-pause" }

func (e Pause) MarshalJSON() ([]byte, error) {
	type plain Pause
	return arena.TagJSON(e.Kind(), plain(e))
}

type Unpause struct {
	UnpausedBy string    `json:"unpausedBy"`
	Time       time.Time `json:"time"`
}

func (e Unpause) Kind() string { return "on-unpause" }

func (e Unpause) MarshalJSON() ([]byte, error) {
	type plain Unpause
	return arena.TagJSON(e.Kind(), plain(e))
}

// Evaluation is the outcome of a test run or a submission.
type Evaluation struct {
	Name         string    `json:"name"`
	QuestionIdx  int       `json:"questionIdx"`
	QuestionText string    `json:"questionText"`
	Passed       int       `json:"passed"`
	Failed       int       `json:"failed"`
	Points       float64   `json:"points"`
	Time         time.Time `json:"time"`
}

type TestEvaluation Evaluation

func (e TestEvaluation) Kind() string { return "on-test-evaluation" }

func (e TestEvaluation) MarshalJSON() ([]byte, error) {
	return arena.TagJSON(e.Kind(), Evaluation(e))
}

type SubmissionEvaluation Evaluation

func (e SubmissionEvaluation) Kind() string { return "on-submission-evaluation" }

func (e SubmissionEvaluation) MarshalJSON() ([]byte, error) {
	return arena.TagJSON(e.Kind(), Evaluation(e))
}

// Complete is sent once a team has passed every problem.
type Complete struct {
	Name string    `json:"name"`
	Time time.Time `json:"time"`
}

func (e Complete) Kind() string { return "on-complete" }

func (e Complete) MarshalJSON() ([]byte, error) {
	type plain Complete
	return arena.TagJSON(e.Kind(), plain(e))
}

type TeamKick struct {
	TeamKicked string    `json:"teamKicked"`
	KickedBy   string    `json:"kickedBy"`
	Time       time.Time `json:"time"`
}

func (e TeamKick) Kind() string { return "on-team-kick" }

func (e TeamKick) MarshalJSON() ([]byte, error) {
	type plain TeamKick
	return arena.TagJSON(e.Kind(), plain(e))
}

type TeamBan struct {
	TeamBanned string    `json:"teamBanned"`
	BannedBy   string    `json:"bannedBy"`
	Time       time.Time `json:"time"`
}

func (e TeamBan) Kind() string { return "on-team-ban" }

func (e TeamBan) MarshalJSON() ([]byte, error) {
	type plain TeamBan
	return arena.TagJSON(e.Kind(), plain(e))
}

type Announcement struct {
	Announcer    string    `json:"announcer"`
	Announcement string    `json:"announcement"`
	Time         time.Time `json:"time"`
}

func (e Announcement) Kind() string { return "on-announcement" }

func (e Announcement) MarshalJSON() ([]byte, error) {
	type plain Announcement
	return arena.TagJSON(e.Kind(), plain(e))
}

// HookName is the name of the script function handling events of the given kind.
// "on-submission-evaluation" becomes "onSubmissionEvaluation".
func HookName(kind string) string {
	parts := strings.Split(kind, "-")
	var sb strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			sb.WriteString(p)
			continue
		}
		sb.WriteString(strings.ToUpper(p[:1]))
		sb.WriteString(p[1:])
	}
	return sb.String()
}
