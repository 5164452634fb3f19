package arena

import "time"

type CompileResult int

const (
	CompileNone CompileResult = iota
	CompileSuccess
	CompileRuntimeFail
	CompileTimedOut
)

var compileResultNames = []string{"no-compile", "success", "runtime-fail", "timed-out"}

func (c CompileResult) String() string { return enumString(int(c), compileResultNames) }

func (c CompileResult) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *CompileResult) UnmarshalText(text []byte) (err error) {
	*c, err = enumFromText[CompileResult](string(text), compileResultNames, "compile result")
	return
}

func CompileResultFromInt(v int) (CompileResult, error) {
	return enumFromInt[CompileResult](v, compileResultNames, "compile result")
}

// SubmissionState moves from Started to exactly one of the terminal states.
type SubmissionState int

const (
	StateStarted SubmissionState = iota
	StateFinished
	StateCancelled
	StateFailed
)

var submissionStateNames = []string{"started", "finished", "cancelled", "failed"}

func (s SubmissionState) String() string { return enumString(int(s), submissionStateNames) }

func (s SubmissionState) Terminal() bool { return s != StateStarted }

func (s SubmissionState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *SubmissionState) UnmarshalText(text []byte) (err error) {
	*s, err = enumFromText[SubmissionState](string(text), submissionStateNames, "submission state")
	return
}

func SubmissionStateFromInt(v int) (SubmissionState, error) {
	return enumFromInt[SubmissionState](v, submissionStateNames, "submission state")
}

type TestResult int

const (
	TestPass TestResult = iota
	TestRuntimeFail
	TestTimedOut
	TestIncorrectOutput
)

var testResultNames = []string{"pass", "runtime-fail", "timed-out", "incorrect-output"}

func (r TestResult) String() string { return enumString(int(r), testResultNames) }

func (r TestResult) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *TestResult) UnmarshalText(text []byte) (err error) {
	*r, err = enumFromText[TestResult](string(text), testResultNames, "test result")
	return
}

func TestResultFromInt(v int) (TestResult, error) {
	return enumFromInt[TestResult](v, testResultNames, "test result")
}

type QuestionState string

const (
	QuestionNotAttempted QuestionState = "not-attempted"
	QuestionInProgress   QuestionState = "in-progress"
	QuestionPass         QuestionState = "pass"
	QuestionFail         QuestionState = "fail"
)

// CompileOutput is what the build step left behind. Result is CompileNone for interpreted languages.
type CompileOutput struct {
	Result     CompileResult `json:"result"`
	Stdout     *string       `json:"stdout,omitempty"`
	Stderr     *string       `json:"stderr,omitempty"`
	ExitStatus *int          `json:"exitStatus,omitempty"`
}

type NewSubmission struct {
	// Time defaults to the insertion time
	Time         time.Time
	Submitter    string
	Code         string
	ProblemIndex int
	Language     string
	Compile      CompileOutput
}

type SubmissionHistory struct {
	ID           string          `json:"id"`
	Submitter    string          `json:"submitter"`
	Time         time.Time       `json:"time"`
	Code         string          `json:"code"`
	ProblemIndex int             `json:"questionIndex"`
	Language     string          `json:"language"`
	Compile      CompileOutput   `json:"compile"`
	State        SubmissionState `json:"state"`
	Score        float64         `json:"score"`
	Success      bool            `json:"success"`
	TimeTaken    time.Duration   `json:"timeTaken"`
}

type TestHistory struct {
	SubmissionID string        `json:"submission"`
	TestIndex    int           `json:"testIndex"`
	Result       TestResult    `json:"result"`
	Stdout       *string       `json:"stdout,omitempty"`
	Stderr       *string       `json:"stderr,omitempty"`
	ExitStatus   int           `json:"exitStatus"`
	TimeTaken    time.Duration `json:"timeTaken"`
}

// SubmissionFilter selects rows of the submission history.
type SubmissionFilter struct {
	ID           *string `json:"id" schema:"-"`
	UserID       *string `json:"user" schema:"user"`
	ProblemIndex *int    `json:"problem" schema:"problem"`
	Success      *bool   `json:"success" schema:"success"`

	Limit  int `json:"limit" schema:"limit"`
	Offset int `json:"offset" schema:"offset"`
}

// ProblemCount is a per-problem aggregate, like the number of attempts or test runs.
type ProblemCount struct {
	ProblemIndex int `json:"questionIndex"`
	Count        int `json:"count"`
}

// ProblemState is the progress of one team on one problem.
type ProblemState struct {
	State             QuestionState `json:"state"`
	RemainingAttempts *int          `json:"remainingAttempts"`
}

// QuestionStates derives the per-problem state from the latest submissions and test run counts.
// A latest submission decides pass/fail, otherwise any test run marks the problem in progress.
func QuestionStates(numProblems int, latest []*SubmissionHistory, testRuns []ProblemCount) []QuestionState {
	states := make([]QuestionState, numProblems)
	for i := range states {
		states[i] = QuestionNotAttempted
	}
	for _, cnt := range testRuns {
		if cnt.ProblemIndex < 0 || cnt.ProblemIndex >= numProblems || cnt.Count <= 0 {
			continue
		}
		states[cnt.ProblemIndex] = QuestionInProgress
	}
	for _, sub := range latest {
		if sub.ProblemIndex < 0 || sub.ProblemIndex >= numProblems {
			continue
		}
		if sub.Success {
			states[sub.ProblemIndex] = QuestionPass
		} else {
			states[sub.ProblemIndex] = QuestionFail
		}
	}
	return states
}
