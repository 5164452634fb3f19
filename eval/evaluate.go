package eval

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/KiloProjects/arena"
	"vimagination.zapto.org/dos2unix"
)

// Output beyond this many bytes per stream is discarded.
const maxOutputSize = 1 << 20

// Evaluate builds the solution inside sb and runs it against every test of req, in order.
func Evaluate(ctx context.Context, sb Sandbox, req *Request) *Outcome {
	start := time.Now()
	outcome := &Outcome{Compile: arena.CompileOutput{Result: arena.CompileNone}}
	defer func() { outcome.TimeTaken = time.Since(start) }()

	if err := sb.WriteFile(req.SourceName, dos2unix.DOS2Unix(strings.NewReader(req.Code)), 0644); err != nil {
		outcome.Kind = OutcomeSpawnFail
		outcome.Err = fmt.Errorf("could not write source file: %w", err)
		return outcome
	}

	if len(req.BuildCommand) > 0 {
		var stdout, stderr limitedBuffer
		stats, err := sb.RunCommand(ctx, req.BuildCommand, &RunConfig{
			Stdout:        &stdout,
			Stderr:        &stderr,
			WallTimeLimit: req.Timeout,
			Directories:   req.Rules,
		})
		if err != nil {
			outcome.Kind = OutcomeSpawnFail
			outcome.Err = fmt.Errorf("could not run build command: %w", err)
			return outcome
		}
		outcome.Compile = arena.CompileOutput{
			Result:     arena.CompileSuccess,
			Stdout:     ptr(stdout.String()),
			Stderr:     ptr(stderr.String()),
			ExitStatus: ptr(stats.ExitCode),
		}
		switch {
		case stats.TimedOut:
			outcome.Compile.Result = arena.CompileTimedOut
		case stats.ExitCode != 0 || stats.Killed:
			outcome.Compile.Result = arena.CompileRuntimeFail
		}
		if outcome.Compile.Result != arena.CompileSuccess {
			outcome.Kind = OutcomeCompileFail
			return outcome
		}
	}

	outcome.Tests = make([]TestOutcome, 0, len(req.Tests))
	for i, test := range req.Tests {
		res, err := runTest(ctx, sb, req, test)
		if err != nil {
			if ctx.Err() != nil {
				err = errors.Join(err, ctx.Err())
			}
			outcome.Kind = OutcomeSpawnFail
			outcome.Err = fmt.Errorf("could not run test %d: %w", i, err)
			return outcome
		}
		outcome.Tests = append(outcome.Tests, res)
		if req.Progress != nil {
			req.Progress(i, res)
		}
	}
	outcome.Kind = OutcomeSuccess
	return outcome
}

func runTest(ctx context.Context, sb Sandbox, req *Request, test Test) (TestOutcome, error) {
	var stdout, stderr limitedBuffer
	stats, err := sb.RunCommand(ctx, req.RunCommand, &RunConfig{
		Stdin:         dos2unix.DOS2Unix(strings.NewReader(test.Input)),
		Stdout:        &stdout,
		Stderr:        &stderr,
		WallTimeLimit: req.Timeout,
		Directories:   req.Rules,
	})
	if err != nil {
		return TestOutcome{}, err
	}

	raw := stdout.Buffer.String()
	res := TestOutcome{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		ExitStatus: stats.ExitCode,
		TimeTaken:  stats.WallTime,
	}
	switch {
	case stats.TimedOut:
		res.Result = arena.TestTimedOut
	case stats.ExitCode != 0 || stats.Killed:
		res.Result = arena.TestRuntimeFail
	case !OutputMatches(raw, test.Output, req.TrimOutput):
		res.Result = arena.TestIncorrectOutput
	default:
		res.Result = arena.TestPass
	}
	return res, nil
}

// OutputMatches compares program output with the expected output, ignoring line ending differences.
// With trim set, leading and trailing whitespace is ignored as well.
func OutputMatches(got, expected string, trim bool) bool {
	got, expected = normalizeNewlines(got), normalizeNewlines(expected)
	if trim {
		return strings.TrimSpace(got) == strings.TrimSpace(expected)
	}
	return got == expected
}

func normalizeNewlines(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	var b strings.Builder
	io.Copy(&b, dos2unix.DOS2Unix(strings.NewReader(s)))
	return b.String()
}

type limitedBuffer struct {
	bytes.Buffer
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if left := maxOutputSize - b.Len(); left < len(p) {
		p = p[:max(left, 0)]
	}
	b.Buffer.Write(p)
	return n, nil
}

// String returns the captured output as text Postgres accepts: NUL bytes are dropped
// and invalid UTF-8 sequences are replaced.
func (b *limitedBuffer) String() string {
	return strings.ToValidUTF8(strings.ReplaceAll(b.Buffer.String(), "\x00", ""), "\uFFFD")
}

func ptr[T any](v T) *T { return &v }
