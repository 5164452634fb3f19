package ws

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestBroadcastRemovesDeadConnections(t *testing.T) {
	is := is.New(t)
	r := NewRegistry()

	alive := r.AddConnection(UserKind("team1"))
	dead := r.AddConnection(UserKind("team2"))
	viewer := r.AddConnection(LeaderboardKind("abc", "127.0.0.1:5000"))
	dead.Close()

	r.Broadcast(NewBroadcast(GamePaused{}))

	is.Equal(r.Len(), 2)
	_, ok := r.Sender(UserKind("team2"))
	is.True(!ok)

	is.Equal(len(alive.Messages()), 1)
	is.Equal(len(viewer.Messages()), 1)
}

func TestBroadcastDropsSlowConsumers(t *testing.T) {
	is := is.New(t)
	r := NewRegistry()
	ob := r.AddConnection(UserKind("team1"))

	for range outboxSize {
		is.NoErr(ob.Send(NewBroadcast(GamePaused{})))
	}
	r.Broadcast(NewBroadcast(GamePaused{}))

	is.Equal(r.Len(), 0)
	is.True(ob.Closed())
}

func TestAddConnectionReplaces(t *testing.T) {
	is := is.New(t)
	r := NewRegistry()
	kind := UserKind("team1")

	first := r.AddConnection(kind)
	second := r.AddConnection(kind)
	is.True(first.Closed())

	// The replaced socket cleaning up after itself must not remove its successor
	r.RemoveIfCurrent(kind, first)
	got, ok := r.Sender(kind)
	is.True(ok)
	is.Equal(got, second)

	r.RemoveConnection(kind)
	_, ok = r.Sender(kind)
	is.True(!ok)
	is.True(second.Closed())
}

func TestWaitForConnectionAlreadyConnected(t *testing.T) {
	is := is.New(t)
	r := NewRegistry()
	ob := r.AddConnection(UserKind("team1"))

	got, ok := r.WaitForConnection(context.Background(), "team1", time.Millisecond)
	is.True(ok)
	is.Equal(got, ob)
}

func TestWaitForConnectionResolves(t *testing.T) {
	is := is.New(t)
	r := NewRegistry()

	const waiters = 3
	results := make(chan *Outbox, waiters)
	var wg sync.WaitGroup
	for range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ob, ok := r.WaitForConnection(context.Background(), "team1", 5*time.Second)
			if ok {
				results <- ob
			}
		}()
	}

	// Wait until every waiter is registered
	deadline := time.Now().Add(2 * time.Second)
	for {
		r.waitMu.Lock()
		n := len(r.waiters["team1"])
		r.waitMu.Unlock()
		if n == waiters || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	ob := r.AddConnection(UserKind("team1"))
	wg.Wait()
	close(results)

	count := 0
	for got := range results {
		is.Equal(got, ob) // every waiter gets the new connection
		count++
	}
	is.Equal(count, waiters)

	r.waitMu.Lock()
	is.Equal(len(r.waiters), 0)
	r.waitMu.Unlock()
}

func TestWaitForConnectionTimesOut(t *testing.T) {
	is := is.New(t)
	r := NewRegistry()

	start := time.Now()
	ob, ok := r.WaitForConnection(context.Background(), "team1", 20*time.Millisecond)
	is.True(!ok)
	is.True(ob == nil)
	is.True(time.Since(start) >= 20*time.Millisecond)

	r.waitMu.Lock()
	is.Equal(len(r.waiters), 0) // the waiter cleaned up after itself
	r.waitMu.Unlock()

	// Leaderboard sockets never satisfy a user waiter
	r.AddConnection(LeaderboardKind("team1", "127.0.0.1:1"))
	_, ok = r.WaitForConnection(context.Background(), "team1", 10*time.Millisecond)
	is.True(!ok)
}

func TestWaitForConnectionContextCancel(t *testing.T) {
	is := is.New(t)
	r := NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := r.WaitForConnection(ctx, "team1", time.Hour)
	is.True(!ok)
}
