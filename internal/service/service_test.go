package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/matryer/is"
)

type fakeServer struct {
	listenErr error
	stop      chan struct{}
	shutdown  bool
}

func (f *fakeServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.shutdown = true
	close(f.stop)
	return nil
}

func TestHTTPShutdown(t *testing.T) {
	is := is.New(t)
	srv := &fakeServer{stop: make(chan struct{})}
	svc := NewHTTP("api", srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		is.True(errors.Is(err, context.Canceled))
		is.True(srv.shutdown)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestHTTPListenError(t *testing.T) {
	is := is.New(t)
	svc := NewHTTP("api", &fakeServer{listenErr: errors.New("address in use")}, 0)

	err := svc.Serve(context.Background())
	is.True(err != nil)
	is.Equal(svc.String(), "api")
}
