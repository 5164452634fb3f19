package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/matryer/is"
)

func dialClient(t *testing.T, handle HandlerFunc) *websocket.Conn {
	t.Helper()
	registry := NewRegistry()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(registry, conn, UserKind("team1"), handle).Serve(r.Context())
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readReply(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var reply map[string]any
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatal(err)
	}
	return reply
}

func TestClientRepliesToInvalidMessages(t *testing.T) {
	is := is.New(t)
	handled := make(chan Incoming, 1)
	conn := dialClient(t, func(_ context.Context, _ Kind, out *Outbox, msg Incoming) {
		handled <- msg
		_ = out.Send(Errorf(&msg.ID, "Unknown message kind '%s'", msg.Kind))
	})

	is.NoErr(conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	reply := readReply(t, conn)
	is.Equal(reply["kind"], "error")
	is.Equal(reply["message"], "Invalid message")
	is.Equal(reply["id"], nil)

	is.NoErr(conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"submit","id":4,"problem":"x"}`)))
	reply = readReply(t, conn)
	is.Equal(reply["message"], "Invalid message")
	is.Equal(reply["id"], float64(4))

	// unknown kinds reach the handler
	is.NoErr(conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"dance","id":5}`)))
	select {
	case msg := <-handled:
		is.Equal(msg.Kind, "dance")
		is.Equal(msg.ID, uint64(5))
	case <-time.After(5 * time.Second):
		t.Fatal("message never reached the handler")
	}
	reply = readReply(t, conn)
	is.Equal(reply["message"], "Unknown message kind 'dance'")
}
