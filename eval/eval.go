package eval

import (
	"context"
	"io"
	"io/fs"
	"time"

	"github.com/KiloProjects/arena"
)

// Sandbox is an isolated working directory in which commands can be run.
type Sandbox interface {
	ReadFile(path string, w io.Writer) error
	WriteFile(path string, r io.Reader, mode fs.FileMode) error
	FileExists(path string) bool

	GetID() int

	RunCommand(ctx context.Context, cmd []string, conf *RunConfig) (*RunStats, error)

	io.Closer
}

// Runner evaluates a solution against a set of tests.
type Runner interface {
	Run(ctx context.Context, req *Request) (*Outcome, error)
}

// Directory represents a directory rule
type Directory struct {
	In       string
	Out      string
	ReadOnly bool
}

// DefaultRules are the host directories visible to the program under test.
func DefaultRules() []Directory {
	return []Directory{
		{In: "/usr", ReadOnly: true},
		{In: "/etc", ReadOnly: true},
		{In: "/dev", ReadOnly: true},
		{In: "/bin", ReadOnly: true},
	}
}

type RunConfig struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	WallTimeLimit time.Duration

	EnvToSet map[string]string

	Directories []Directory
}

type RunStats struct {
	ExitCode   int
	ExitSignal int
	Killed     bool
	TimedOut   bool

	WallTime time.Duration
}

type Test struct {
	Input  string
	Output string
}

type Request struct {
	// SourceName is the file name the code is written to, relative to the sandbox root
	SourceName string
	Code       string

	// BuildCommand is empty for interpreted languages
	BuildCommand []string
	RunCommand   []string

	Tests []Test

	Timeout    time.Duration
	TrimOutput bool
	Rules      []Directory

	// Progress, if set, is called after every test
	Progress func(idx int, res TestOutcome)
}

type OutcomeKind int

const (
	// OutcomeSuccess means every test was run, whatever the verdicts
	OutcomeSuccess OutcomeKind = iota
	OutcomeCompileFail
	// OutcomeSpawnFail means the sandbox could not run the build or the tests
	OutcomeSpawnFail
)

type TestOutcome struct {
	Result     arena.TestResult
	Stdout     string
	Stderr     string
	ExitStatus int
	TimeTaken  time.Duration
}

func (o TestOutcome) Passed() bool {
	return o.Result == arena.TestPass
}

type Outcome struct {
	Kind    OutcomeKind
	Compile arena.CompileOutput
	Tests   []TestOutcome

	// Err is the reason of an OutcomeSpawnFail
	Err error

	TimeTaken time.Duration
}

// Counts returns the number of passed and failed tests.
func (o *Outcome) Counts() (passed, failed int) {
	for _, t := range o.Tests {
		if t.Passed() {
			passed++
		} else {
			failed++
		}
	}
	return
}
