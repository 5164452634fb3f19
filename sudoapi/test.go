package sudoapi

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/KiloProjects/arena"
	"github.com/KiloProjects/arena/grader"
	"github.com/KiloProjects/arena/internal/ws"
	"github.com/KiloProjects/arena/sudoapi/flags"
	"github.com/google/uuid"
)

type TestRunRequest struct {
	Language string `json:"language"`
	Solution string `json:"solution"`
	Problem  int    `json:"problem"`
}

// StartTestRun checks the request and runs the visible tests in the background.
// Results are streamed to the user's socket, tagged with the returned run id.
func (s *BaseAPI) StartTestRun(ctx context.Context, user *arena.User, args TestRunRequest) (string, error) {
	if user == nil || user.Role != arena.RoleCompetitor {
		return "", grader.ErrUnauthenticated
	}
	req := grader.Request{Language: args.Language, Solution: args.Solution, Problem: args.Problem}
	if err := s.grader.Validate(req); err != nil {
		return "", err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", arena.WrapError(err, "Couldn't generate run id")
	}
	runID := id.String()

	go s.streamTestRun(context.WithoutCancel(ctx), user, runID, req)
	return runID, nil
}

func (s *BaseAPI) streamTestRun(ctx context.Context, user *arena.User, runID string, req grader.Request) {
	kind := ws.UserKind(user.ID)
	logger := s.logger.With(slog.String("run", runID), slog.Any("kind", kind))

	out, ok := s.conns.Sender(kind)
	if !ok {
		wait := time.Duration(flags.StreamConnectWaitSecs.Value()) * time.Second
		out, ok = s.conns.WaitForConnection(ctx, user.ID, wait)
		if !ok {
			logger.WarnContext(ctx, "No socket to stream test results to, dropping run")
			return
		}
	}
	send := func(msg ws.Message) {
		if err := out.Send(msg); err != nil {
			logger.DebugContext(ctx, "Couldn't stream test results", slog.Any("err", err))
		}
	}

	deb := newDebouncer(time.Duration(flags.StreamDebounceMs.Value())*time.Millisecond, send)
	report, err := s.grader.RunTests(ctx, kind, user, req, func(r grader.Report) {
		deb.Push(progressMessage(runID, r, false))
	})
	deb.Stop()
	if err != nil {
		msg := err.Error()
		if arena.ErrorCode(err) >= 500 {
			logger.WarnContext(ctx, "Streamed test run failed", slog.Any("err", err))
			msg = "Internal error"
		}
		send(ws.Errorf(nil, "%s", msg))
		return
	}
	send(progressMessage(runID, *report, true))
}

func progressMessage(runID string, r grader.Report, done bool) ws.TestProgressMessage {
	return ws.TestProgressMessage{
		RunID:   runID,
		Results: r.Results,
		Passed:  r.Passed,
		Failed:  r.Failed,
		Done:    done,
	}
}

// debouncer coalesces bursts of messages, sending only the latest one once delay has passed.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	send    func(ws.Message)
	pending ws.Message
	timer   *time.Timer
	stopped bool
}

func newDebouncer(delay time.Duration, send func(ws.Message)) *debouncer {
	return &debouncer{delay: delay, send: send}
}

func (d *debouncer) Push(msg ws.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending = msg
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.flush)
	}
}

func (d *debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timer = nil
	if d.stopped || d.pending == nil {
		return
	}
	msg := d.pending
	d.pending = nil
	d.send(msg)
}

// Stop drops any pending message. Nothing is sent after Stop returns.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
