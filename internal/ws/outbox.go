package ws

import (
	"errors"
	"sync"
)

const outboxSize = 256

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSlowConsumer     = errors.New("connection is not reading its messages")
)

// Outbox is the outbound queue of one socket. The registry and the coordinator
// send into it, the socket's write pump drains it.
type Outbox struct {
	ch   chan Message
	done chan struct{}
	once sync.Once
}

func newOutbox() *Outbox {
	return &Outbox{
		ch:   make(chan Message, outboxSize),
		done: make(chan struct{}),
	}
}

// Send queues msg without blocking. It fails once the outbox is closed,
// or when the queue is full, since a client that stopped reading is as good as gone.
func (o *Outbox) Send(msg Message) error {
	select {
	case <-o.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case o.ch <- msg:
		return nil
	case <-o.done:
		return ErrConnectionClosed
	default:
		return ErrSlowConsumer
	}
}

// Messages is drained by the write pump.
func (o *Outbox) Messages() <-chan Message {
	return o.ch
}

// Done is closed when the outbox stops accepting messages.
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

// Close is idempotent.
func (o *Outbox) Close() {
	o.once.Do(func() { close(o.done) })
}

func (o *Outbox) Closed() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}
