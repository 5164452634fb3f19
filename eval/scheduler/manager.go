package scheduler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/KiloProjects/arena/eval"
	"golang.org/x/sync/semaphore"
)

type BoxFunc func(id int, logger *slog.Logger) (eval.Sandbox, error)

var _ eval.Runner = &BoxManager{}

// BoxManager bounds the number of sandboxes running at once and hands out box ids.
type BoxManager struct {
	numConcurrent int64
	concSem       *semaphore.Weighted

	logger *slog.Logger

	availableIDs chan int

	boxGenerator BoxFunc
}

func (b *BoxManager) NumConcurrent() int64 {
	return b.numConcurrent
}

func (b *BoxManager) GetBox(ctx context.Context) (eval.Sandbox, error) {
	if b.boxGenerator == nil {
		return nil, errors.New("empty box generator")
	}
	if err := b.concSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	id := <-b.availableIDs
	box, err := b.boxGenerator(id, b.logger)
	if err != nil {
		b.availableIDs <- id
		b.concSem.Release(1)
		return nil, err
	}
	return box, nil
}

func (b *BoxManager) ReleaseBox(sb eval.Sandbox) {
	if err := sb.Close(); err != nil {
		b.logger.Warn("Could not release sandbox", slog.Int("box_id", sb.GetID()), slog.Any("err", err))
	}
	b.availableIDs <- sb.GetID()
	b.concSem.Release(1)
}

// Run evaluates req in a fresh sandbox, waiting for one to be free first.
// Failing to obtain a sandbox is reported as a spawn failure.
func (b *BoxManager) Run(ctx context.Context, req *eval.Request) (*eval.Outcome, error) {
	box, err := b.GetBox(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.logger.WarnContext(ctx, "Could not get box", slog.Any("err", err))
		return &eval.Outcome{Kind: eval.OutcomeSpawnFail, Err: err}, nil
	}
	defer b.ReleaseBox(box)

	return eval.Evaluate(ctx, box, req), nil
}

// Close waits for all boxes to finish running
func (b *BoxManager) Close(ctx context.Context) error {
	return b.concSem.Acquire(ctx, b.numConcurrent)
}

// New creates a new box manager
func New(count int, logger *slog.Logger, boxGenerator BoxFunc) *BoxManager {
	if count <= 0 {
		count = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	availableIDs := make(chan int, count)
	for i := 1; i <= count; i++ {
		availableIDs <- i
	}

	return &BoxManager{
		concSem:       semaphore.NewWeighted(int64(count)),
		availableIDs:  availableIDs,
		numConcurrent: int64(count),

		logger: logger,

		boxGenerator: boxGenerator,
	}
}
