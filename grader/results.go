package grader

import (
	"github.com/KiloProjects/arena"
	"github.com/KiloProjects/arena/eval"
	"github.com/KiloProjects/arena/internal/ws"
)

func clientOutcome(o eval.TestOutcome) ws.TestOutcome {
	switch o.Result {
	case arena.TestPass:
		return ws.PassOutcome()
	case arena.TestTimedOut:
		return ws.FailOutcome(ws.ReasonTimeout, nil, nil, nil)
	case arena.TestIncorrectOutput:
		return ws.FailOutcome(ws.ReasonIncorrectOutput, &o.Stdout, &o.Stderr, &o.ExitStatus)
	default:
		return ws.FailOutcome(ws.ReasonCrash, &o.Stdout, &o.Stderr, &o.ExitStatus)
	}
}

// visibleResults pairs the outcomes with their tests, leaving out hidden tests.
// indices maps every outcome to the index of its test in the problem.
func visibleResults(problem *arena.Problem, outcomes []eval.TestOutcome, indices []int) []ws.IndividualTest {
	results := make([]ws.IndividualTest, 0, len(outcomes))
	for i, o := range outcomes {
		idx := i
		if indices != nil {
			idx = indices[i]
		}
		if idx >= len(problem.Tests) || !problem.Tests[idx].Visible {
			continue
		}
		results = append(results, ws.IndividualTest{
			Index:  idx,
			Result: clientOutcome(o),
			Test:   problem.Tests[idx],
		})
	}
	return results
}

func compileFailResults(out arena.CompileOutput) ws.TestResults {
	var stdout, stderr string
	var status int
	if out.Stdout != nil {
		stdout = *out.Stdout
	}
	if out.Stderr != nil {
		stderr = *out.Stderr
	}
	if out.ExitStatus != nil {
		status = *out.ExitStatus
	}
	return ws.CompileFailResults(stdout, stderr, status)
}

// testHistory is the persisted form of a test outcome.
func testHistory(idx int, o eval.TestOutcome) arena.TestHistory {
	th := arena.TestHistory{
		TestIndex: idx,
		Result:    o.Result,
		TimeTaken: o.TimeTaken,
	}
	switch o.Result {
	case arena.TestPass:
	case arena.TestTimedOut:
		th.ExitStatus = 1
	default:
		th.Stdout = &o.Stdout
		th.Stderr = &o.Stderr
		th.ExitStatus = o.ExitStatus
	}
	return th
}

func outcomeLabel(o *eval.Outcome) string {
	switch o.Kind {
	case eval.OutcomeCompileFail:
		return ws.ResultsCompileFail
	case eval.OutcomeSpawnFail:
		return ws.ResultsInternalError
	default:
		return "success"
	}
}
