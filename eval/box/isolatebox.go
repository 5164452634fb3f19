package box

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/KiloProjects/arena"
	"github.com/KiloProjects/arena/eval"
	"github.com/spf13/afero"
)

const (
	runErrRetries = 3
	runErrTimeout = 200 * time.Millisecond
)

var _ eval.Sandbox = &IsolateBox{}

// IsolateBox runs commands through the isolate sandbox, with the directory rules
// mounted and everything else hidden.
type IsolateBox struct {
	// the mutex makes sure we don't do anything stupid while we do other stuff
	mu          sync.Mutex
	isolatePath string
	fs          afero.Fs
	boxID       int

	logger *slog.Logger
}

// buildRunFlags compiles all flags into an array
func buildRunFlags(boxID int, c *eval.RunConfig, metaFile string) (res []string) {
	res = append(res, "--box-id="+strconv.Itoa(boxID))

	res = append(res, "--cg", "--processes")
	for _, dir := range c.Directories {
		toAdd := "--dir=" + dir.In
		if dir.Out != "" {
			toAdd += "=" + dir.Out
		}
		if !dir.ReadOnly {
			toAdd += ":rw"
		}
		res = append(res, toAdd)
	}

	keys := make([]string, 0, len(c.EnvToSet))
	for key := range c.EnvToSet {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		res = append(res, "--env="+key+"="+c.EnvToSet[key])
	}

	if c.WallTimeLimit != 0 {
		limit := strconv.FormatFloat(c.WallTimeLimit.Seconds(), 'f', -1, 64)
		res = append(res, "--time="+limit, "--wall-time="+limit)
	}

	if metaFile != "" {
		res = append(res, "--meta="+metaFile)
	}

	res = append(res, "--silent", "--run", "--")
	return
}

func (b *IsolateBox) WriteFile(fpath string, r io.Reader, mode fs.FileMode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return writeFile(b.fs, fpath, r, mode)
}

func (b *IsolateBox) ReadFile(fpath string, w io.Writer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return readFile(b.fs, fpath, w)
}

func (b *IsolateBox) GetID() int {
	return b.boxID
}

// FileExists returns if a file exists or not
func (b *IsolateBox) FileExists(fpath string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return checkFile(b.fs, fpath)
}

func (b *IsolateBox) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return exec.Command(b.isolatePath, "--cg", "--box-id="+strconv.Itoa(b.boxID), "--cleanup").Run()
}

func (b *IsolateBox) runCommand(ctx context.Context, params []string, conf *eval.RunConfig, metaFile string) (*eval.RunStats, error) {
	cmd := exec.CommandContext(ctx, b.isolatePath, params...)
	cmd.Stdin = conf.Stdin
	cmd.Stdout = conf.Stdout
	cmd.Stderr = conf.Stderr
	err := cmd.Run()
	if _, ok := err.(*exec.ExitError); err != nil && !ok {
		return nil, err
	}

	f, err := os.Open(metaFile)
	if err != nil {
		return nil, fmt.Errorf("could not open meta file: %w", err)
	}
	defer f.Close()
	defer os.Remove(metaFile)
	return parseMetaFile(f, b.logger)
}

func (b *IsolateBox) RunCommand(ctx context.Context, command []string, conf *eval.RunConfig) (*eval.RunStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	for i := 1; i <= runErrRetries; i++ {
		var meta *eval.RunStats
		metaFile := path.Join(os.TempDir(), "arena-meta-"+arena.RandomString(12))
		meta, err = b.runCommand(ctx, append(buildRunFlags(b.boxID, conf, metaFile), command...), conf, metaFile)
		if err == nil {
			return meta, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.logger.WarnContext(ctx, "Run error in box, retrying", slog.Int("box_id", b.boxID), slog.Int("attempt", i), slog.Any("err", err))
		time.Sleep(runErrTimeout)
	}
	return nil, err
}

// NewIsolate initializes the isolate box with the given id
func NewIsolate(isolatePath string, id int, logger *slog.Logger) (*IsolateBox, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ret, err := exec.Command(isolatePath, "--cg", fmt.Sprintf("--box-id=%d", id), "--init").CombinedOutput()
	if strings.HasPrefix(string(ret), "Box already exists") {
		logger.Info("Box reset", slog.Int("box_id", id))
		if out, err := exec.Command(isolatePath, "--cg", fmt.Sprintf("--box-id=%d", id), "--cleanup").CombinedOutput(); err != nil {
			logger.Warn("Could not clean up box", slog.Any("err", err), slog.String("output", string(out)))
			return nil, err
		}
		return NewIsolate(isolatePath, id, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("could not init isolate box: %w (%s)", err, strings.TrimSpace(string(ret)))
	}

	root := filepath.Join(strings.TrimSpace(string(ret)), "box")
	return &IsolateBox{
		isolatePath: isolatePath,
		fs:          afero.NewBasePathFs(afero.NewOsFs(), root),
		boxID:       id,
		logger:      logger,
	}, nil
}

var errSandbox = errors.New("sandbox internal error")

// parseMetaFile parses a specified meta file
func parseMetaFile(r io.Reader, logger *slog.Logger) (*eval.RunStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var file = new(eval.RunStats)

	s := bufio.NewScanner(r)
	for s.Scan() {
		key, val, ok := strings.Cut(s.Text(), ":")
		if !ok {
			continue
		}
		switch key {
		case "exitcode":
			file.ExitCode, _ = strconv.Atoi(val)
		case "exitsig":
			file.ExitSignal, _ = strconv.Atoi(val)
			file.ExitCode = 128 + file.ExitSignal
		case "killed":
			file.Killed = true
		case "status":
			switch val {
			case "TO":
				file.TimedOut = true
			case "XX":
				return nil, errSandbox
			}
		case "time-wall":
			secs, _ := strconv.ParseFloat(val, 64)
			file.WallTime = time.Duration(secs * float64(time.Second))
		case "time", "message", "cg-mem", "max-rss", "csw-voluntary", "csw-forced", "cg-enabled", "cg-oom-killed":
			continue
		default:
			logger.Debug("Unknown isolate stat", slog.String("key", key), slog.String("value", val))
		}
	}
	return file, s.Err()
}
