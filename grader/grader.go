// Package grader coordinates test runs and submissions: it validates requests,
// keeps one run per (connection, problem), drives the sandbox and persists and scores the outcome.
package grader

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/KiloProjects/arena"
	"github.com/KiloProjects/arena/eval"
	"github.com/KiloProjects/arena/internal/clock"
	"github.com/KiloProjects/arena/internal/events"
	"github.com/KiloProjects/arena/internal/repository"
	"github.com/KiloProjects/arena/internal/scoring"
	"github.com/KiloProjects/arena/internal/ws"
)

var (
	ErrUnauthenticated   = arena.Statusf(401, "Must be signed in to run tests")
	ErrTestsRunning      = arena.Statusf(409, "Tests are already running")
	ErrSubmissionRunning = arena.Statusf(409, "Submission is already running")
	ErrPaused            = arena.Statusf(403, "Competition is paused")
	ErrTimeUp            = arena.Statusf(403, "Time is up")
)

// Store is the part of the submission repository the coordinator needs.
type Store interface {
	Pool() repository.Querier
	Tx(ctx context.Context, fn func(q repository.Querier) error) error

	CountPreviousSubmissions(ctx context.Context, userID string, problem int) (int, error)
	CountOtherSubmissions(ctx context.Context, q repository.Querier, userID string, problem int, before time.Time) (int, error)
	InsertFinishedSubmission(ctx context.Context, q repository.Querier, sub arena.NewSubmission, score float64, success bool, elapsed time.Duration) (*arena.SubmissionHistory, error)
	InsertFailedSubmission(ctx context.Context, q repository.Querier, sub arena.NewSubmission, elapsed time.Duration) (*arena.SubmissionHistory, error)
	CreateSubmissionTestHistory(ctx context.Context, q repository.Querier, submissionID string, test arena.TestHistory) error
	CreateTestRun(ctx context.Context, userID string, problem int) error

	GetLatestSubmissions(ctx context.Context, userID string) ([]*arena.SubmissionHistory, error)
	GetUserScore(ctx context.Context, userID string) (float64, error)
	CountTests(ctx context.Context, userID string) ([]arena.ProblemCount, error)
}

type Broadcaster interface {
	Broadcast(msg ws.Message)
}

type Dispatcher interface {
	Dispatch(ev events.Event) error
}

type Languages interface {
	Get(name string) (*eval.Language, bool)
}

// Clock is the competition clock gating submissions.
type Clock interface {
	Current() clock.Current
}

type Settings struct {
	// MaxSubmissions is the number of attempts per problem, 0 meaning unlimited
	MaxSubmissions int
	Timeout        time.Duration
	TrimOutput     bool

	// Clock, if set, rejects submissions while paused or past TimeLimit.
	// A zero TimeLimit never runs out.
	Clock     Clock
	TimeLimit time.Duration
}

type Coordinator struct {
	store       Store
	runner      eval.Runner
	broadcaster Broadcaster
	dispatcher  Dispatcher
	scorer      scoring.Scorer
	packet      *arena.Packet
	langs       Languages
	settings    Settings

	now    func() time.Time
	logger *slog.Logger

	// active holds a key for every run in progress
	active sync.Map
}

func New(store Store, runner eval.Runner, broadcaster Broadcaster, dispatcher Dispatcher, scorer scoring.Scorer, packet *arena.Packet, langs Languages, settings Settings, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:       store,
		runner:      runner,
		broadcaster: broadcaster,
		dispatcher:  dispatcher,
		scorer:      scorer,
		packet:      packet,
		langs:       langs,
		settings:    settings,
		now:         time.Now,
		logger:      logger,
	}
}

type runKind int

const (
	runTest runKind = iota
	runSubmission
)

func (k runKind) String() string {
	if k == runSubmission {
		return "submission"
	}
	return "test"
}

type activeKey struct {
	conn    ws.Kind
	problem int
	kind    runKind
}

// tryAcquire marks the key as running. It returns false if it already was.
func (c *Coordinator) tryAcquire(key activeKey) bool {
	_, loaded := c.active.LoadOrStore(key, struct{}{})
	if !loaded {
		activeRuns.Inc()
	}
	return !loaded
}

func (c *Coordinator) release(key activeKey) {
	if _, ok := c.active.LoadAndDelete(key); ok {
		activeRuns.Dec()
	}
}

// Request is a solution to evaluate.
type Request struct {
	Language string
	Solution string
	Problem  int
}

// Report is what the client gets to see about a run.
type Report struct {
	Results ws.TestResults
	Passed  int
	Failed  int
}

type SubmitReport struct {
	Report
	RemainingAttempts *int
}

func (c *Coordinator) resolve(req Request) (*arena.Problem, *eval.Language, error) {
	problem := c.packet.Problem(req.Problem)
	if problem == nil {
		return nil, nil, arena.Statusf(400, "Unknown problem %d", req.Problem)
	}
	if strings.ContainsRune(req.Solution, 0) || !utf8.ValidString(req.Solution) {
		return nil, nil, arena.Statusf(400, "Solution must be UTF-8 text")
	}
	lang, ok := c.langs.Get(req.Language)
	if !ok {
		return nil, nil, arena.Statusf(400, "Unknown language '%s'", req.Language)
	}
	if !problem.AllowsLanguage(lang.Name) {
		return nil, nil, arena.Statusf(400, "Language '%s' is not allowed for this problem", lang.Name)
	}
	return problem, lang, nil
}

// Validate checks that the problem exists and accepts the language.
func (c *Coordinator) Validate(req Request) error {
	_, _, err := c.resolve(req)
	return err
}

func (c *Coordinator) buildRequest(lang *eval.Language, code string, tests []arena.TestCase) *eval.Request {
	evalTests := make([]eval.Test, 0, len(tests))
	for _, t := range tests {
		evalTests = append(evalTests, eval.Test{Input: t.Input, Output: t.Output})
	}
	return &eval.Request{
		SourceName:   lang.SourceName,
		Code:         code,
		BuildCommand: lang.BuildCommand,
		RunCommand:   lang.RunCommand,
		Tests:        evalTests,
		Timeout:      c.settings.Timeout,
		TrimOutput:   c.settings.TrimOutput,
		Rules:        eval.DefaultRules(),
	}
}

// checkClock returns the reason submissions are currently closed, if any.
func (c *Coordinator) checkClock() error {
	if c.settings.Clock == nil {
		return nil
	}
	cur := c.settings.Clock.Current()
	if cur.Paused {
		return ErrPaused
	}
	if c.settings.TimeLimit > 0 && cur.Elapsed >= c.settings.TimeLimit {
		return ErrTimeUp
	}
	return nil
}

func (c *Coordinator) remainingAttempts(attempts int) *int {
	if c.settings.MaxSubmissions <= 0 {
		return nil
	}
	rem := max(c.settings.MaxSubmissions-attempts-1, 0)
	return &rem
}

func (c *Coordinator) dispatch(ctx context.Context, ev events.Event) {
	if err := c.dispatcher.Dispatch(ev); err != nil {
		c.logger.WarnContext(ctx, "Couldn't dispatch event", slog.String("event", ev.Kind()), slog.Any("err", err))
	}
}

// TeamState computes the score and per-problem states of a team.
func (c *Coordinator) TeamState(ctx context.Context, userID string) (float64, []arena.QuestionState, error) {
	latest, err := c.store.GetLatestSubmissions(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	runs, err := c.store.CountTests(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	score, err := c.store.GetUserScore(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	return score, arena.QuestionStates(len(c.packet.Problems), latest, runs), nil
}

// broadcastTeamUpdate is best effort, the returned states are nil if they couldn't be computed.
func (c *Coordinator) broadcastTeamUpdate(ctx context.Context, user *arena.User) []arena.QuestionState {
	score, states, err := c.TeamState(ctx, user.ID)
	if err != nil {
		c.logger.ErrorContext(ctx, "Couldn't compute team state", slog.String("user", user.ID), slog.Any("err", err))
		return nil
	}
	c.broadcaster.Broadcast(ws.NewBroadcast(ws.TeamUpdate{
		ID:        user.ID,
		Name:      user.Name(),
		NewScore:  score,
		NewStates: states,
	}))
	return states
}

func observeRun(kind runKind, outcome string, start time.Time) {
	runsTotal.WithLabelValues(kind.String(), outcome).Inc()
	runDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
}
