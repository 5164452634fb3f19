package eval

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/KiloProjects/arena"
	"github.com/KiloProjects/arena/internal/config"
	"github.com/matryer/is"
)

// scriptedSandbox answers commands from a table instead of running them.
type scriptedSandbox struct {
	files map[string]string
	run   func(cmd []string, stdin string) (*RunStats, string, error)
	calls [][]string
}

func (s *scriptedSandbox) ReadFile(path string, w io.Writer) error {
	data, ok := s.files[path]
	if !ok {
		return fs.ErrNotExist
	}
	_, err := io.WriteString(w, data)
	return err
}

func (s *scriptedSandbox) WriteFile(path string, r io.Reader, _ fs.FileMode) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.files[path] = string(data)
	return nil
}

func (s *scriptedSandbox) FileExists(path string) bool {
	_, ok := s.files[path]
	return ok
}

func (s *scriptedSandbox) GetID() int { return 1 }

func (s *scriptedSandbox) RunCommand(_ context.Context, cmd []string, conf *RunConfig) (*RunStats, error) {
	s.calls = append(s.calls, cmd)
	var stdin string
	if conf.Stdin != nil {
		data, _ := io.ReadAll(conf.Stdin)
		stdin = string(data)
	}
	stats, stdout, err := s.run(cmd, stdin)
	if err != nil {
		return nil, err
	}
	if conf.Stdout != nil {
		io.WriteString(conf.Stdout, stdout)
	}
	return stats, nil
}

func (s *scriptedSandbox) Close() error { return nil }

func newScripted(run func(cmd []string, stdin string) (*RunStats, string, error)) *scriptedSandbox {
	return &scriptedSandbox{files: make(map[string]string), run: run}
}

// doubler prints twice its input, except for 3 which it gets wrong, 4 on which it crashes and 5 on which it hangs.
func doubler(cmd []string, stdin string) (*RunStats, string, error) {
	switch strings.TrimSpace(stdin) {
	case "1":
		return &RunStats{}, "2\n", nil
	case "2":
		return &RunStats{}, "4", nil
	case "3":
		return &RunStats{}, "7\n", nil
	case "4":
		return &RunStats{ExitCode: 139, ExitSignal: 11, Killed: true}, "", nil
	default:
		return &RunStats{TimedOut: true}, "", nil
	}
}

func TestEvaluateVerdicts(t *testing.T) {
	is := is.New(t)
	sb := newScripted(doubler)

	var progress []int
	out := Evaluate(context.Background(), sb, &Request{
		SourceName: "main.py",
		Code:       "print(int(input())*2)\r\n",
		RunCommand: []string{"python3", "main.py"},
		Tests: []Test{
			{Input: "1", Output: "2"},
			{Input: "2", Output: "4\n"},
			{Input: "3", Output: "6"},
			{Input: "4", Output: "8"},
			{Input: "5", Output: "10"},
		},
		Timeout:    time.Second,
		TrimOutput: true,
		Progress:   func(idx int, _ TestOutcome) { progress = append(progress, idx) },
	})

	is.Equal(out.Kind, OutcomeSuccess)
	is.Equal(out.Compile.Result, arena.CompileNone)
	is.Equal(sb.files["main.py"], "print(int(input())*2)\n") // line endings are normalized

	results := make([]arena.TestResult, 0, len(out.Tests))
	for _, test := range out.Tests {
		results = append(results, test.Result)
	}
	is.Equal(results, []arena.TestResult{arena.TestPass, arena.TestPass, arena.TestIncorrectOutput, arena.TestRuntimeFail, arena.TestTimedOut})
	is.Equal(progress, []int{0, 1, 2, 3, 4})

	passed, failed := out.Counts()
	is.Equal(passed, 2)
	is.Equal(failed, 3)
}

func TestEvaluateCompileFailure(t *testing.T) {
	is := is.New(t)
	sb := newScripted(func(cmd []string, _ string) (*RunStats, string, error) {
		if cmd[0] == "gcc" {
			return &RunStats{ExitCode: 1}, "main.c:1: error", nil
		}
		t.Fatal("tests must not run after a failed build")
		return nil, "", nil
	})

	out := Evaluate(context.Background(), sb, &Request{
		SourceName:   "main.c",
		Code:         "int main( {",
		BuildCommand: []string{"gcc", "main.c"},
		RunCommand:   []string{"./a.out"},
		Tests:        []Test{{Input: "1", Output: "2"}},
	})
	is.Equal(out.Kind, OutcomeCompileFail)
	is.Equal(out.Compile.Result, arena.CompileRuntimeFail)
	is.Equal(*out.Compile.Stdout, "main.c:1: error")
	is.Equal(*out.Compile.ExitStatus, 1)
	is.Equal(len(out.Tests), 0)
}

func TestEvaluateSpawnFailure(t *testing.T) {
	is := is.New(t)
	sb := newScripted(func([]string, string) (*RunStats, string, error) {
		return nil, "", errors.New("exec: no such file")
	})

	out := Evaluate(context.Background(), sb, &Request{
		SourceName: "main.rb",
		RunCommand: []string{"ruby", "main.rb"},
		Tests:      []Test{{Input: "1", Output: "2"}},
	})
	is.Equal(out.Kind, OutcomeSpawnFail)
	is.True(out.Err != nil)
}

func TestOutputMatches(t *testing.T) {
	is := is.New(t)

	is.True(OutputMatches("3\n", "3\n", false))
	is.True(OutputMatches("3\r\n", "3\n", false))
	is.True(!OutputMatches("3", "3\n", false))
	is.True(OutputMatches("  3\n\n", "3", true))
	is.True(!OutputMatches("4", "3", true))
}

func TestLimitedBuffer(t *testing.T) {
	is := is.New(t)

	var buf limitedBuffer
	chunk := bytes.Repeat([]byte{'a'}, maxOutputSize/2+1)
	for range 3 {
		n, err := buf.Write(chunk)
		is.NoErr(err)
		is.Equal(n, len(chunk))
	}
	is.Equal(buf.Len(), maxOutputSize)
}

func TestEvaluateBinaryOutput(t *testing.T) {
	is := is.New(t)
	sb := newScripted(func(cmd []string, _ string) (*RunStats, string, error) {
		if cmd[0] == "gcc" {
			return &RunStats{}, "warn\x00\xfe", nil
		}
		return &RunStats{}, "a\x00\xff", nil
	})

	out := Evaluate(context.Background(), sb, &Request{
		SourceName:   "main.c",
		BuildCommand: []string{"gcc", "main.c"},
		RunCommand:   []string{"./a.out"},
		Tests:        []Test{{Input: "1", Output: "a"}},
	})
	is.Equal(out.Kind, OutcomeSuccess)
	is.Equal(*out.Compile.Stdout, "warn\uFFFD")

	res := out.Tests[0]
	is.Equal(res.Result, arena.TestIncorrectOutput) // NUL bytes still count against the answer
	is.Equal(res.Stdout, "a\uFFFD")
	is.True(utf8.ValidString(res.Stdout))
	is.True(!strings.ContainsRune(res.Stdout, 0))
}

func TestLanguages(t *testing.T) {
	is := is.New(t)

	langs, err := NewLanguages([]config.Language{
		{Name: "python3", DisplayName: "Python 3", Run: "python3 main.py", Source: "main.py"},
		{Name: "c", DisplayName: "C", Build: `gcc -O2 -o main "main file.c"`, Run: "./main", Source: "main file.c"},
	})
	is.NoErr(err)

	c, ok := langs.Get("c")
	is.True(ok)
	is.True(c.Compiled())
	is.Equal(c.BuildCommand, []string{"gcc", "-O2", "-o", "main", "main file.c"})

	py, ok := langs.Get("python3")
	is.True(ok)
	is.True(!py.Compiled())

	_, ok = langs.Get("cobol")
	is.True(!ok)

	py.Disabled = true
	_, ok = langs.Get("python3")
	is.True(!ok)
	is.Equal(len(langs.List()), 1)

	_, err = NewLanguages([]config.Language{{Name: "bad", Run: `python3 "unterminated`, Source: "x"}})
	is.True(err != nil)
}
