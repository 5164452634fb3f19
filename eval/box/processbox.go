package box

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/KiloProjects/arena/eval"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

var _ eval.Sandbox = &ProcessBox{}

// ProcessBox runs commands as plain child processes inside a private directory.
// Every command gets its own process group, which is killed as a whole on timeout.
// Directory rules are not enforced, use the isolate box when that matters.
type ProcessBox struct {
	mu    sync.Mutex
	root  string
	fs    afero.Fs
	boxID int

	logger *slog.Logger
}

func NewProcess(workDir string, boxID int, logger *slog.Logger) (*ProcessBox, error) {
	root := filepath.Join(workDir, fmt.Sprintf("arena-box-%d", boxID))
	// Try to clear existing box first, if it exited without cleanup
	if err := os.RemoveAll(root); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessBox{
		root:   root,
		fs:     afero.NewBasePathFs(afero.NewOsFs(), root),
		boxID:  boxID,
		logger: logger,
	}, nil
}

func (b *ProcessBox) GetID() int {
	return b.boxID
}

func (b *ProcessBox) ReadFile(fpath string, w io.Writer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return readFile(b.fs, fpath, w)
}

func (b *ProcessBox) WriteFile(fpath string, r io.Reader, mode fs.FileMode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return writeFile(b.fs, fpath, r, mode)
}

func (b *ProcessBox) FileExists(fpath string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return checkFile(b.fs, fpath)
}

func (b *ProcessBox) RunCommand(ctx context.Context, command []string, conf *eval.RunConfig) (*eval.RunStats, error) {
	if len(command) == 0 {
		return nil, errors.New("empty command")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	runCtx := ctx
	if conf.WallTimeLimit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, conf.WallTimeLimit)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, command[0], command[1:]...)
	cmd.Dir = b.root
	cmd.Env = []string{"PATH=" + os.Getenv("PATH"), "HOME=" + b.root}
	for key, val := range conf.EnvToSet {
		cmd.Env = append(cmd.Env, key+"="+val)
	}
	cmd.Stdin = conf.Stdin
	cmd.Stdout = conf.Stdout
	cmd.Stderr = conf.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// The negative pid addresses the whole process group
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	stats := &eval.RunStats{WallTime: time.Since(start)}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	stats.TimedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded)

	var exitErr *exec.ExitError
	switch {
	case err == nil, errors.Is(err, exec.ErrWaitDelay):
	case errors.As(err, &exitErr):
		stats.ExitCode = exitErr.ExitCode()
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			stats.ExitSignal = int(status.Signal())
			stats.ExitCode = 128 + stats.ExitSignal
			stats.Killed = true
		}
	default:
		if stats.TimedOut {
			return stats, nil
		}
		return nil, err
	}
	return stats, nil
}

func (b *ProcessBox) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return os.RemoveAll(b.root)
}
