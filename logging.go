package arena

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

func logColors(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	if os.Getenv("NO_COLOR") != "" {
		return false
	}

	if !isatty.IsTerminal(f.Fd()) {
		return false
	}

	return os.Getenv("TERM") != "dumb"
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func logLevel(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func GetSlogHandler(debug bool, out io.Writer) slog.Handler {
	return tint.NewHandler(out, &tint.Options{
		AddSource: true,
		Level:     logLevel(debug),
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if _, ok := attr.Value.Any().(error); attr.Key == "err" || ok {
				return tint.Attr(9, attr)
			}
			return attr
		},
		TimeFormat: time.RFC3339,
		NoColor:    !logColors(out),
	})
}

// NewLogHandler writes colored logs to out and, if logDir is set,
// JSON logs to a rotated arena.log file inside it.
// The returned closer must be called on shutdown to flush the log file.
func NewLogHandler(debug bool, out io.Writer, logDir string) (slog.Handler, io.Closer) {
	term := GetSlogHandler(debug, out)
	if logDir == "" {
		return term, nopCloser{}
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "arena.log"),
		MaxSize:    80, // MB
		MaxBackups: 7,
		Compress:   true,
	}
	jsonHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel(debug),
	})
	return slogmulti.Fanout(term, jsonHandler), file
}
