package arena

import (
	"errors"
	"log/slog"
	"net/http"
	"syscall"

	"github.com/goccy/go-json"
)

// StatusData writes the {"status", "data"} envelope every HTTP response uses.
// An error is sent with its status code and text.
func StatusData(w http.ResponseWriter, status string, retData any, statusCode int) {
	if err, ok := retData.(error); ok {
		if code := ErrorCode(err); code >= 500 {
			slog.Warn("Internal error on HTTP response", slog.Any("err", err))
		}
		status, statusCode, retData = "error", ErrorCode(err), err.Error()
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	err := json.NewEncoder(w).Encode(struct {
		Status string `json:"status"`
		Data   any    `json:"data"`
	}{
		Status: status,
		Data:   retData,
	})
	if err != nil {
		if errors.Is(err, syscall.EPIPE) {
			return
		}
		slog.Error("Couldn't send return data", slog.Any("err", err))
	}
}
