package events

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dop251/goja"
	"github.com/goccy/go-json"
)

const scriptTimeout = 20 * time.Second

type hookScript struct {
	path string
	prog *goja.Program
}

// ScriptSink runs the event hook functions of user supplied JS files.
// A script handles an event by defining a function named after it, like
// onSubmissionEvaluation(event). Scripts without that function are skipped.
type ScriptSink struct {
	scripts []hookScript
	timeout time.Duration
	logger  *slog.Logger
}

func NewScriptSink(logger *slog.Logger, paths ...string) (*ScriptSink, error) {
	sink := &ScriptSink{timeout: scriptTimeout, logger: logger}
	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not read event script: %w", err)
		}
		if err := sink.add(path, string(src)); err != nil {
			return nil, err
		}
	}
	return sink, nil
}

func (s *ScriptSink) add(name, src string) error {
	prog, err := goja.Compile(name, src, true)
	if err != nil {
		return fmt.Errorf("could not compile event script %q: %w", name, err)
	}
	s.scripts = append(s.scripts, hookScript{path: name, prog: prog})
	return nil
}

func (s *ScriptSink) Name() string { return "scripts" }

func (s *ScriptSink) Handle(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}

	hook := HookName(ev.Kind())
	var errs []error
	for _, script := range s.scripts {
		if err := s.run(ctx, script, hook, payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", script.path, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d event scripts failed: %v", len(errs), errs)
	}
	return nil
}

func (s *ScriptSink) run(ctx context.Context, script hookScript, hook string, payload map[string]any) error {
	vm := goja.New()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt("event script timed out")
	})
	defer stop()

	console := vm.NewObject()
	logger := s.logger.With(slog.String("script", script.path))
	console.Set("log", func(call goja.FunctionCall) goja.Value {
		args := make([]any, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			args = append(args, arg.Export())
		}
		logger.Info(fmt.Sprint(args...))
		return goja.Undefined()
	})
	vm.Set("console", console)

	if _, err := vm.RunProgram(script.prog); err != nil {
		return err
	}
	fn, ok := goja.AssertFunction(vm.Get(hook))
	if !ok {
		return nil
	}
	_, err := fn(goja.Undefined(), vm.ToValue(payload))
	return err
}
