package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	queueSize   = 1024
	sinkTimeout = 30 * time.Second
)

var (
	ErrDispatcherClosed = errors.New("event dispatcher is closed")
	ErrQueueFull        = errors.New("event queue is full")
)

// Sink receives every dispatched event.
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev Event) error
}

// Dispatcher queues events and fans them out to its sinks.
// Dispatch never blocks; the queue is drained by Serve.
type Dispatcher struct {
	queue chan Event
	sinks []Sink

	closeOnce sync.Once
	closed    chan struct{}

	inflight sync.WaitGroup
	logger   *slog.Logger
}

func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		queue:  make(chan Event, queueSize),
		sinks:  sinks,
		closed: make(chan struct{}),
		logger: logger,
	}
}

func (d *Dispatcher) Dispatch(ev Event) error {
	select {
	case <-d.closed:
		return ErrDispatcherClosed
	default:
	}
	select {
	case d.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close makes further dispatches fail. Events already queued are still delivered
// as long as Serve runs.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.closed) })
}

// Serve delivers events until ctx is cancelled, then waits for the deliveries in flight.
func (d *Dispatcher) Serve(ctx context.Context) error {
	defer d.inflight.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-d.queue:
			d.logger.DebugContext(ctx, "Dispatching event", slog.String("kind", ev.Kind()))
			for _, sink := range d.sinks {
				d.inflight.Add(1)
				go d.deliver(context.WithoutCancel(ctx), sink, ev)
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, sink Sink, ev Event) {
	defer d.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "Event sink panicked", slog.String("sink", sink.Name()), slog.String("kind", ev.Kind()), slog.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()
	if err := sink.Handle(ctx, ev); err != nil {
		d.logger.WarnContext(ctx, "Could not handle event", slog.String("sink", sink.Name()), slog.String("kind", ev.Kind()), slog.Any("err", err))
	}
}

func (d *Dispatcher) String() string {
	return fmt.Sprintf("event-dispatcher(%d sinks)", len(d.sinks))
}
