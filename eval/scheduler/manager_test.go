package scheduler

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KiloProjects/arena/eval"
	"github.com/matryer/is"
)

type slowBox struct {
	id      int
	running *atomic.Int32
	peak    *atomic.Int32
}

func (b *slowBox) ReadFile(string, io.Writer) error { return fs.ErrNotExist }
func (b *slowBox) WriteFile(string, io.Reader, fs.FileMode) error { return nil }
func (b *slowBox) FileExists(string) bool { return false }
func (b *slowBox) GetID() int { return b.id }
func (b *slowBox) Close() error { return nil }

func (b *slowBox) RunCommand(context.Context, []string, *eval.RunConfig) (*eval.RunStats, error) {
	n := b.running.Add(1)
	defer b.running.Add(-1)
	for {
		peak := b.peak.Load()
		if n <= peak || b.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return &eval.RunStats{}, nil
}

func TestBoxManagerLimitsConcurrency(t *testing.T) {
	is := is.New(t)

	var running, peak atomic.Int32
	mgr := New(2, nil, func(id int, _ *slog.Logger) (eval.Sandbox, error) {
		return &slowBox{id: id, running: &running, peak: &peak}, nil
	})

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := mgr.Run(context.Background(), &eval.Request{
				SourceName: "main.py",
				RunCommand: []string{"python3", "main.py"},
				Tests:      []eval.Test{{Input: "", Output: ""}},
			})
			is.NoErr(err)
			is.Equal(out.Kind, eval.OutcomeSuccess)
		}()
	}
	wg.Wait()

	is.True(peak.Load() <= 2)
	is.NoErr(mgr.Close(context.Background()))
}

func TestBoxManagerGeneratorFailure(t *testing.T) {
	is := is.New(t)

	mgr := New(1, nil, func(int, *slog.Logger) (eval.Sandbox, error) {
		return nil, errors.New("no isolate binary found")
	})
	for range 3 {
		// The slot must be given back every time
		out, err := mgr.Run(context.Background(), &eval.Request{})
		is.NoErr(err)
		is.Equal(out.Kind, eval.OutcomeSpawnFail)
	}
}

func TestBoxManagerContextCancelled(t *testing.T) {
	is := is.New(t)

	mgr := New(1, nil, func(id int, _ *slog.Logger) (eval.Sandbox, error) {
		return &slowBox{id: id, running: new(atomic.Int32), peak: new(atomic.Int32)}, nil
	})
	box, err := mgr.GetBox(context.Background())
	is.NoErr(err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = mgr.Run(ctx, &eval.Request{})
	is.True(errors.Is(err, context.DeadlineExceeded))

	mgr.ReleaseBox(box)
}
