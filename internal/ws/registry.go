package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Registry holds every live socket.
//
// Connections live in a sync.Map so that lookups and sends for different
// sockets never contend. Waiters for a user's socket are kept separately, under
// waitMu; connecting a user and registering a waiter both happen under that lock,
// so a waiter can never miss the connection it is waiting for.
type Registry struct {
	conns sync.Map // Kind -> *Outbox

	waitMu  sync.Mutex
	waiters map[string][]chan *Outbox
}

func NewRegistry() *Registry {
	return &Registry{waiters: make(map[string][]chan *Outbox)}
}

// AddConnection registers a socket and returns its outbox.
// An existing connection of the same kind is replaced and its outbox closed.
// Pending waiters for the user are all handed the new outbox.
func (r *Registry) AddConnection(kind Kind) *Outbox {
	ob := newOutbox()
	if !kind.IsUser() {
		if old, loaded := r.conns.Swap(kind, ob); loaded {
			old.(*Outbox).Close()
		}
		return ob
	}

	r.waitMu.Lock()
	pending := r.waiters[kind.UserID]
	delete(r.waiters, kind.UserID)
	old, loaded := r.conns.Swap(kind, ob)
	r.waitMu.Unlock()

	if loaded {
		old.(*Outbox).Close()
	}
	for _, w := range pending {
		w <- ob // buffered, never blocks
	}
	return ob
}

// RemoveConnection unregisters whatever socket is registered for kind.
func (r *Registry) RemoveConnection(kind Kind) {
	if old, loaded := r.conns.LoadAndDelete(kind); loaded {
		old.(*Outbox).Close()
	}
}

// RemoveIfCurrent unregisters kind only if ob is still its registered outbox.
// A socket that was replaced by a newer one must not remove its successor.
func (r *Registry) RemoveIfCurrent(kind Kind, ob *Outbox) {
	r.conns.CompareAndDelete(kind, ob)
	ob.Close()
}

func (r *Registry) Sender(kind Kind) (*Outbox, bool) {
	val, ok := r.conns.Load(kind)
	if !ok {
		return nil, false
	}
	ob := val.(*Outbox)
	if ob.Closed() {
		return nil, false
	}
	return ob, true
}

// Broadcast sends msg to every socket. Sockets that can no longer receive are
// dropped from the registry as part of the same pass.
func (r *Registry) Broadcast(msg Message) {
	r.conns.Range(func(key, val any) bool {
		ob := val.(*Outbox)
		if err := ob.Send(msg); err != nil {
			slog.Warn("Socket discovered to be closed when sending broadcast, removing it from active connections",
				slog.Any("kind", key), slog.Any("err", err))
			r.conns.CompareAndDelete(key, ob)
			ob.Close()
		}
		return true
	})
}

// WaitForConnection returns the outbox of userID's socket, waiting up to timeout
// for the user to connect. It reports false if nobody connected in time.
func (r *Registry) WaitForConnection(ctx context.Context, userID string, timeout time.Duration) (*Outbox, bool) {
	kind := UserKind(userID)

	r.waitMu.Lock()
	if ob, ok := r.Sender(kind); ok {
		r.waitMu.Unlock()
		return ob, true
	}
	ch := make(chan *Outbox, 1)
	r.waiters[userID] = append(r.waiters[userID], ch)
	r.waitMu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ob := <-ch:
		return ob, true
	case <-timer.C:
	case <-ctx.Done():
	}

	r.removeWaiter(userID, ch)
	// The connection may have arrived between the timeout and the removal
	select {
	case ob := <-ch:
		return ob, true
	default:
		return nil, false
	}
}

func (r *Registry) removeWaiter(userID string, ch chan *Outbox) {
	r.waitMu.Lock()
	defer r.waitMu.Unlock()
	list := r.waiters[userID]
	for i, w := range list {
		if w == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.waiters, userID)
	} else {
		r.waiters[userID] = list
	}
}

func (r *Registry) Len() int {
	n := 0
	r.conns.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (r *Registry) Kinds() []Kind {
	var kinds []Kind
	r.conns.Range(func(key, _ any) bool {
		kinds = append(kinds, key.(Kind))
		return true
	})
	return kinds
}
