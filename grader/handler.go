package grader

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/KiloProjects/arena"
	"github.com/KiloProjects/arena/internal/ws"
)

// Sender is the outbound side of a socket.
type Sender interface {
	Send(msg ws.Message) error
}

// HandleMessage answers a run-test or submit message on out.
// Client mistakes are reported with their message, anything else as a generic internal error.
func (c *Coordinator) HandleMessage(ctx context.Context, kind ws.Kind, user *arena.User, out Sender, msg ws.Incoming) {
	id := msg.ID
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "Panic while handling websocket message", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			c.reply(ctx, out, ws.Errorf(&id, "Internal error"))
		}
	}()

	req := Request{Language: msg.Language, Solution: msg.Solution, Problem: msg.Problem}
	switch msg.Kind {
	case ws.KindRunTest:
		report, err := c.RunTests(ctx, kind, user, req, nil)
		if err != nil {
			c.replyError(ctx, out, id, err)
			return
		}
		c.reply(ctx, out, ws.TestResultsMessage{ID: id, Results: report.Results, Passed: report.Passed, Failed: report.Failed})
	case ws.KindSubmit:
		// A submission is recorded even if the socket goes away while it runs
		report, err := c.Submit(context.WithoutCancel(ctx), kind, user, req)
		if err != nil {
			c.replyError(ctx, out, id, err)
			return
		}
		c.reply(ctx, out, ws.SubmitMessage{
			ID:                id,
			Results:           report.Results,
			Passed:            report.Passed,
			Failed:            report.Failed,
			RemainingAttempts: report.RemainingAttempts,
		})
	default:
		c.reply(ctx, out, ws.Errorf(&id, "Unknown message kind '%s'", msg.Kind))
	}
}

func (c *Coordinator) replyError(ctx context.Context, out Sender, id uint64, err error) {
	if arena.ErrorCode(err) >= 500 {
		c.logger.ErrorContext(ctx, "Couldn't handle websocket message", slog.Uint64("id", id), slog.Any("err", err))
		c.reply(ctx, out, ws.Errorf(&id, "Internal error"))
		return
	}
	c.reply(ctx, out, ws.ErrorMessage{ID: &id, Message: err.Error()})
}

func (c *Coordinator) reply(ctx context.Context, out Sender, msg ws.Message) {
	if err := out.Send(msg); err != nil {
		c.logger.DebugContext(ctx, "Couldn't reply on websocket", slog.String("message_kind", msg.MessageKind()), slog.Any("err", err))
	}
}
