package grader

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/KiloProjects/arena"
	"github.com/KiloProjects/arena/eval"
	"github.com/KiloProjects/arena/internal/events"
	"github.com/KiloProjects/arena/internal/repository"
	"github.com/KiloProjects/arena/internal/scoring"
	"github.com/KiloProjects/arena/internal/ws"
)

// RunTests runs the visible tests of a problem.
// If progress is set, it receives the partial report after every test.
func (c *Coordinator) RunTests(ctx context.Context, kind ws.Kind, user *arena.User, req Request, progress func(Report)) (*Report, error) {
	if user == nil || !kind.IsUser() {
		return nil, ErrUnauthenticated
	}
	problem, lang, err := c.resolve(req)
	if err != nil {
		return nil, err
	}

	key := activeKey{conn: kind, problem: req.Problem, kind: runTest}
	if !c.tryAcquire(key) {
		return nil, ErrTestsRunning
	}
	defer c.release(key)
	start := time.Now()

	if err := c.store.CreateTestRun(ctx, user.ID, req.Problem); err != nil {
		return nil, arena.WrapError(err, "Couldn't record test run")
	}
	c.broadcastTeamUpdate(ctx, user)

	tests, indices := problem.VisibleTests()
	evalReq := c.buildRequest(lang, req.Solution, tests)
	if progress != nil {
		var done []eval.TestOutcome
		evalReq.Progress = func(_ int, o eval.TestOutcome) {
			done = append(done, o)
			partial := &eval.Outcome{Tests: done}
			passed, failed := partial.Counts()
			progress(Report{
				Results: ws.IndividualResults(visibleResults(problem, done, indices)),
				Passed:  passed,
				Failed:  failed,
			})
		}
	}

	outcome, err := c.runner.Run(ctx, evalReq)
	if err != nil {
		observeRun(runTest, "error", start)
		return nil, arena.WrapError(err, "Couldn't run tests")
	}
	observeRun(runTest, outcomeLabel(outcome), start)

	var report Report
	switch outcome.Kind {
	case eval.OutcomeSpawnFail:
		c.logger.ErrorContext(ctx, "Couldn't spawn test run", slog.String("user", user.ID), slog.Int("problem", req.Problem), slog.Any("err", outcome.Err))
		report.Results = ws.InternalErrorResults()
	case eval.OutcomeCompileFail:
		report.Results = compileFailResults(outcome.Compile)
	default:
		report.Passed, report.Failed = outcome.Counts()
		report.Results = ws.IndividualResults(visibleResults(problem, outcome.Tests, indices))
	}

	c.dispatch(ctx, events.TestEvaluation{
		Name:         user.Name(),
		QuestionIdx:  req.Problem,
		QuestionText: problem.Title,
		Passed:       report.Passed,
		Failed:       report.Failed,
		Time:         c.now(),
	})
	return &report, nil
}

func (c *Coordinator) problemPassed(ctx context.Context, userID string, problem int) bool {
	latest, err := c.store.GetLatestSubmissions(ctx, userID)
	if err != nil {
		c.logger.WarnContext(ctx, "Couldn't get latest submissions", slog.String("user", userID), slog.Any("err", err))
		return false
	}
	return slices.ContainsFunc(latest, func(sub *arena.SubmissionHistory) bool {
		return sub.ProblemIndex == problem && sub.Success
	})
}

// Submit runs all tests of a problem and records a scored attempt.
func (c *Coordinator) Submit(ctx context.Context, kind ws.Kind, user *arena.User, req Request) (*SubmitReport, error) {
	if user == nil || !kind.IsUser() {
		return nil, ErrUnauthenticated
	}
	problem, lang, err := c.resolve(req)
	if err != nil {
		return nil, err
	}
	if err := c.checkClock(); err != nil {
		return nil, err
	}

	attempts, err := c.store.CountPreviousSubmissions(ctx, user.ID, req.Problem)
	if err != nil {
		return nil, arena.WrapError(err, "Couldn't count previous submissions")
	}
	if c.settings.MaxSubmissions > 0 && attempts >= c.settings.MaxSubmissions {
		return nil, arena.Statusf(403, "Only %d submissions are allowed.", c.settings.MaxSubmissions)
	}

	key := activeKey{conn: kind, problem: req.Problem, kind: runSubmission}
	if !c.tryAcquire(key) {
		return nil, ErrSubmissionRunning
	}
	defer c.release(key)
	start := time.Now()

	wasPassed := c.problemPassed(ctx, user.ID, req.Problem)
	submittedAt := c.now()

	outcome, err := c.runner.Run(ctx, c.buildRequest(lang, req.Solution, problem.Tests))
	if err != nil {
		observeRun(runSubmission, "error", start)
		return nil, arena.WrapError(err, "Couldn't run submission")
	}

	sub := arena.NewSubmission{
		Time:         submittedAt,
		Submitter:    user.ID,
		Code:         req.Solution,
		ProblemIndex: req.Problem,
		Language:     lang.Name,
		Compile:      outcome.Compile,
	}
	report := &SubmitReport{RemainingAttempts: c.remainingAttempts(attempts)}

	if outcome.Kind != eval.OutcomeSuccess {
		if outcome.Kind == eval.OutcomeSpawnFail {
			c.logger.ErrorContext(ctx, "Couldn't spawn submission", slog.String("user", user.ID), slog.Int("problem", req.Problem), slog.Any("err", outcome.Err))
			report.Results = ws.InternalErrorResults()
		} else {
			report.Results = compileFailResults(outcome.Compile)
		}
		if _, err := c.store.InsertFailedSubmission(ctx, c.store.Pool(), sub, outcome.TimeTaken); err != nil {
			observeRun(runSubmission, "error", start)
			return nil, arena.WrapError(err, "Couldn't save submission")
		}
		observeRun(runSubmission, outcomeLabel(outcome), start)

		c.broadcastTeamUpdate(ctx, user)
		c.dispatch(ctx, events.SubmissionEvaluation{
			Name:         user.Name(),
			QuestionIdx:  req.Problem,
			QuestionText: problem.Title,
			Time:         submittedAt,
		})
		return report, nil
	}

	passed, failed := outcome.Counts()
	success := failed == 0 && passed == len(problem.Tests)
	var score float64
	err = c.store.Tx(ctx, func(q repository.Querier) error {
		others, err := c.store.CountOtherSubmissions(ctx, q, user.ID, req.Problem, submittedAt)
		if err != nil {
			return fmt.Errorf("couldn't count other completions: %w", err)
		}
		if success {
			score, err = c.scorer.Score(req.Problem, scoring.Context{
				OtherCompletions: others,
				PriorAttempts:    attempts,
				Passed:           passed,
				Failed:           failed,
				Total:            len(problem.Tests),
			})
			if err != nil {
				return fmt.Errorf("couldn't compute score: %w", err)
			}
		}
		hist, err := c.store.InsertFinishedSubmission(ctx, q, sub, score, success, outcome.TimeTaken)
		if err != nil {
			return err
		}
		for i, t := range outcome.Tests {
			if err := c.store.CreateSubmissionTestHistory(ctx, q, hist.ID, testHistory(i, t)); err != nil {
				return fmt.Errorf("couldn't save test %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		observeRun(runSubmission, "error", start)
		return nil, arena.WrapError(err, "Couldn't save submission")
	}
	observeRun(runSubmission, outcomeLabel(outcome), start)

	report.Passed, report.Failed = passed, failed
	report.Results = ws.IndividualResults(visibleResults(problem, outcome.Tests, nil))

	states := c.broadcastTeamUpdate(ctx, user)
	if success && !wasPassed && len(states) > 0 && !slices.ContainsFunc(states, func(s arena.QuestionState) bool { return s != arena.QuestionPass }) {
		c.dispatch(ctx, events.Complete{Name: user.Name(), Time: submittedAt})
	}
	c.dispatch(ctx, events.SubmissionEvaluation{
		Name:         user.Name(),
		QuestionIdx:  req.Problem,
		QuestionText: problem.Title,
		Passed:       passed,
		Failed:       failed,
		Points:       score,
		Time:         submittedAt,
	})
	return report, nil
}
