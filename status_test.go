package arena

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/matryer/is"
)

func TestErrorCode(t *testing.T) {
	is := is.New(t)

	is.Equal(ErrorCode(nil), 200)
	is.Equal(ErrorCode(errors.New("plain")), 500)
	is.Equal(ErrorCode(ErrNotFound), 404)
	is.Equal(ErrorCode(fmt.Errorf("lookup: %w", ErrUnauthorized)), 401)
}

func TestWrapError(t *testing.T) {
	is := is.New(t)

	base := errors.New("connection reset")
	err := WrapError(base, "Couldn't load submissions")
	is.Equal(err.Error(), "Couldn't load submissions")
	is.Equal(ErrorCode(err), 500)
	is.True(errors.Is(err, base))

	err = WrapError(ErrForbidden, "Not your submission")
	is.Equal(ErrorCode(err), 403)

	is.NoErr(WrapError(nil, "nothing"))
}

func TestStatusIs(t *testing.T) {
	is := is.New(t)
	is.True(errors.Is(Statusf(404, "Not found"), ErrNotFound))
	is.True(!errors.Is(Statusf(404, "Something else"), ErrNotFound))
}

func TestStatusData(t *testing.T) {
	is := is.New(t)

	rec := httptest.NewRecorder()
	StatusData(rec, "success", map[string]int{"count": 2}, 200)
	is.Equal(rec.Code, 200)
	is.Equal(rec.Header().Get("Content-Type"), "application/json; charset=utf-8")
	is.Equal(rec.Body.String(), `{"status":"success","data":{"count":2}}`+"\n")

	rec = httptest.NewRecorder()
	StatusData(rec, "success", ErrForbidden, 200)
	is.Equal(rec.Code, 403)
	is.Equal(rec.Body.String(), `{"status":"error","data":"You do not have permission to do this"}`+"\n")
}
