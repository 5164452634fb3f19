package box

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/KiloProjects/arena/eval"
	"github.com/matryer/is"
)

func newTestBox(t *testing.T) *ProcessBox {
	t.Helper()
	b, err := NewProcess(t.TempDir(), 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestGeneratorWarnsUnconfined(t *testing.T) {
	is := is.New(t)
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	gen, err := Generator(context.Background(), logger, KindProcess, t.TempDir())
	is.NoErr(err)
	is.True(strings.Contains(logs.String(), "level=WARN"))
	is.True(strings.Contains(logs.String(), "does not confine"))

	sb, err := gen(1, logger)
	is.NoErr(err)
	is.NoErr(sb.Close())

	_, err = Generator(context.Background(), logger, "chroot", t.TempDir())
	is.True(err != nil)
}

func TestProcessBoxFiles(t *testing.T) {
	is := is.New(t)
	b := newTestBox(t)

	is.True(!b.FileExists("main.py"))
	is.NoErr(b.WriteFile("main.py", strings.NewReader("print(1)\n"), 0644))
	is.True(b.FileExists("main.py"))

	var buf bytes.Buffer
	is.NoErr(b.ReadFile("main.py", &buf))
	is.Equal(buf.String(), "print(1)\n")
}

func TestProcessBoxRun(t *testing.T) {
	is := is.New(t)
	b := newTestBox(t)
	is.NoErr(b.WriteFile("input.sh", strings.NewReader("read a b\necho $((a+b))\n"), 0755))

	var stdout bytes.Buffer
	stats, err := b.RunCommand(context.Background(), []string{"sh", "input.sh"}, &eval.RunConfig{
		Stdin:         strings.NewReader("2 3\n"),
		Stdout:        &stdout,
		WallTimeLimit: 5 * time.Second,
	})
	is.NoErr(err)
	is.Equal(stats.ExitCode, 0)
	is.True(!stats.TimedOut)
	is.Equal(stdout.String(), "5\n")
}

func TestProcessBoxExitCode(t *testing.T) {
	is := is.New(t)
	b := newTestBox(t)

	var stderr bytes.Buffer
	stats, err := b.RunCommand(context.Background(), []string{"sh", "-c", "echo oops >&2; exit 3"}, &eval.RunConfig{
		Stderr:        &stderr,
		WallTimeLimit: 5 * time.Second,
	})
	is.NoErr(err)
	is.Equal(stats.ExitCode, 3)
	is.Equal(stderr.String(), "oops\n")
}

func TestProcessBoxTimeout(t *testing.T) {
	is := is.New(t)
	b := newTestBox(t)

	start := time.Now()
	// The child sleep shares the process group and is killed along with the shell
	stats, err := b.RunCommand(context.Background(), []string{"sh", "-c", "sleep 10; echo done"}, &eval.RunConfig{
		WallTimeLimit: 100 * time.Millisecond,
	})
	is.NoErr(err)
	is.True(stats.TimedOut)
	is.True(time.Since(start) < 5*time.Second)
}

func TestProcessBoxSpawnFailure(t *testing.T) {
	is := is.New(t)
	b := newTestBox(t)

	_, err := b.RunCommand(context.Background(), []string{"definitely-not-a-real-binary-arena"}, &eval.RunConfig{})
	is.True(err != nil)

	_, err = b.RunCommand(context.Background(), nil, &eval.RunConfig{})
	is.True(err != nil)
}

func TestBuildRunFlags(t *testing.T) {
	is := is.New(t)

	flags := buildRunFlags(3, &eval.RunConfig{
		WallTimeLimit: 1500 * time.Millisecond,
		EnvToSet:      map[string]string{"B": "2", "A": "1"},
		Directories: append(eval.DefaultRules(),
			eval.Directory{In: "/box/cache", Out: "/tmp/cache"},
		),
	}, "/tmp/meta")

	is.Equal(flags, []string{
		"--box-id=3", "--cg", "--processes",
		"--dir=/usr", "--dir=/etc", "--dir=/dev", "--dir=/bin", "--dir=/box/cache=/tmp/cache:rw",
		"--env=A=1", "--env=B=2",
		"--time=1.5", "--wall-time=1.5",
		"--meta=/tmp/meta",
		"--silent", "--run", "--",
	})
}

func TestParseMetaFile(t *testing.T) {
	is := is.New(t)

	stats, err := parseMetaFile(strings.NewReader("time:0.010\ntime-wall:0.250\nexitcode:1\nstatus:RE\nmessage:Exited with error status 1\n"), nil)
	is.NoErr(err)
	is.Equal(stats.ExitCode, 1)
	is.Equal(stats.WallTime, 250*time.Millisecond)
	is.True(!stats.TimedOut)

	stats, err = parseMetaFile(strings.NewReader("status:TO\nkilled:1\n"), nil)
	is.NoErr(err)
	is.True(stats.TimedOut)
	is.True(stats.Killed)

	_, err = parseMetaFile(strings.NewReader("status:XX\n"), nil)
	is.True(err != nil)
}
