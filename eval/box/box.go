// Package box provides the sandboxes solutions are built and run in.
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

	"github.com/KiloProjects/arena/eval"
	"github.com/spf13/afero"
)

const (
	KindProcess = "process"
	KindIsolate = "isolate"
)

// Generator returns a function creating sandboxes of the given kind.
func Generator(ctx context.Context, logger *slog.Logger, kind string, workDir string) (func(id int, logger *slog.Logger) (eval.Sandbox, error), error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch kind {
	case "", KindProcess:
		logger.WarnContext(ctx, "Process sandbox does not confine submitted code, directory rules are not enforced. Use the isolate sandbox for untrusted submissions", slog.String("work_dir", workDir))
		return func(id int, logger *slog.Logger) (eval.Sandbox, error) {
			return NewProcess(workDir, id, logger)
		}, nil
	case KindIsolate:
		isolatePath, err := FindIsolate(ctx)
		if err != nil {
			return nil, err
		}
		return func(id int, logger *slog.Logger) (eval.Sandbox, error) {
			return NewIsolate(isolatePath, id, logger)
		}, nil
	default:
		return nil, fmt.Errorf("unknown sandbox kind %q", kind)
	}
}

// FindIsolate looks for the isolate binary in the usual places.
func FindIsolate(ctx context.Context) (string, error) {
	for _, path := range []string{
		"/usr/local/bin/isolate",     // Official path
		"/usr/local/etc/isolate_bin", // Cgroup v1 path
		"isolate",                    // Lookup in other path
	} {
		p, err := exec.LookPath(path)
		if err == nil {
			slog.InfoContext(ctx, "Initialized sandbox binary path", slog.String("path", p))
			return p, nil
		}
	}
	slog.ErrorContext(ctx, "Sandbox binary not found")
	return "", errors.New("no isolate binary found")
}

func readFile(fsys afero.Fs, p string, w io.Writer) error {
	f, err := fsys.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}

func writeFile(fsys afero.Fs, p string, r io.Reader, mode fs.FileMode) error {
	f, err := fsys.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, r)
	if err1 := f.Sync(); err1 != nil && err == nil {
		err = err1
	}
	if err1 := f.Close(); err1 != nil && err == nil {
		err = err1
	}
	return err
}

func checkFile(fsys afero.Fs, p string) bool {
	_, err := fsys.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false
		}
		slog.WarnContext(context.Background(), "File stat returned weird error", slog.String("path", p), slog.Any("err", err))
		return false
	}
	return true
}
