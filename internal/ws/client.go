package ws

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB
)

// HandlerFunc processes one client message. Each message is handled in its own
// goroutine, so a long running submission does not stop the socket from reading.
type HandlerFunc func(ctx context.Context, kind Kind, out *Outbox, msg Incoming)

// Client is a middleman between the websocket connection and the registry
type Client struct {
	conn     *websocket.Conn
	kind     Kind
	registry *Registry
	outbox   *Outbox
	handle   HandlerFunc
	logger   *slog.Logger
}

// NewClient registers conn in the registry under kind.
func NewClient(registry *Registry, conn *websocket.Conn, kind Kind, handle HandlerFunc) *Client {
	return &Client{
		conn:     conn,
		kind:     kind,
		registry: registry,
		outbox:   registry.AddConnection(kind),
		handle:   handle,
		logger:   slog.With(slog.Any("conn", kind)),
	}
}

func (c *Client) Outbox() *Outbox {
	return c.outbox
}

// Serve pumps messages in both directions until the socket is closed or ctx is done.
// The client is removed from the registry on exit.
func (c *Client) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.registry.RemoveIfCurrent(c.kind, c.outbox)

	go func() {
		select {
		case <-ctx.Done():
		case <-c.outbox.Done():
		}
		// Unblocks the read pump
		_ = c.conn.SetReadDeadline(time.Now())
	}()

	go c.writePump()
	c.readPump(ctx)
}

// readPump pumps messages from the websocket connection to the handler
func (c *Client) readPump(ctx context.Context) {
	defer c.outbox.Close()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("Failed to set read deadline", slog.Any("err", err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("Unexpected websocket close", slog.Any("err", err))
			}
			return
		}

		msg, err := DecodeIncoming(data)
		if err != nil {
			c.logger.Debug("Invalid websocket message", slog.Any("err", err))
			if err := c.outbox.Send(InvalidMessage(data)); err != nil {
				return
			}
			continue
		}
		go c.handle(ctx, c.kind, c.outbox, msg)
	}
}

// writePump pumps messages from the outbox to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.outbox.Messages():
			if err := c.write(msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.logger.Debug("Failed to write websocket message", slog.Any("err", err))
				}
				c.outbox.Close()
				return
			}
		case <-c.outbox.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.outbox.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.outbox.Close()
				return
			}
		}
	}
}

func (c *Client) write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Couldn't encode websocket message", slog.String("message_kind", msg.MessageKind()), slog.Any("err", err))
		return nil
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
