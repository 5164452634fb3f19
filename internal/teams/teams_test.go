package teams

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestCheckIn(t *testing.T) {
	is := is.New(t)
	now := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	r := New(func() time.Time { return now })
	r.InsertMany([]string{"team1", "team2"})

	is.True(r.CheckIn("team1"))  // first login
	is.True(!r.CheckIn("team1")) // already checked in
	is.True(!r.CheckIn("ghost")) // unknown ids are ignored

	info, ok := r.Get("team1")
	is.True(ok)
	is.True(info.CheckedIn)
	is.Equal(*info.LastSeen, now)

	_, ok = r.Get("ghost")
	is.True(!ok)
}

func TestDisconnect(t *testing.T) {
	is := is.New(t)
	r := New(nil)
	r.Insert("team1")
	r.CheckIn("team1")
	seen, _ := r.Get("team1")

	r.Disconnect("team1")
	info, _ := r.Get("team1")
	is.True(info.Disconnected)
	// checked in and last seen survive a disconnect
	is.True(info.CheckedIn)
	is.Equal(info.LastSeen, seen.LastSeen)

	r.CheckIn("team1")
	info, _ = r.Get("team1")
	is.True(!info.Disconnected)
}

func TestInsertIsIdempotent(t *testing.T) {
	is := is.New(t)
	r := New(nil)
	r.Insert("team1")
	r.CheckIn("team1")
	r.Insert("team1")

	info, _ := r.Get("team1")
	is.True(info.CheckedIn)
	is.Equal(len(r.List()), 1)
}

func TestList(t *testing.T) {
	is := is.New(t)
	r := New(nil)
	r.InsertMany([]string{"c", "a", "b"})
	r.Remove("b")

	list := r.List()
	is.Equal(len(list), 2)
	is.Equal(list[0].ID, "a")
	is.Equal(list[1].ID, "c")
}

func TestConcurrentCheckIn(t *testing.T) {
	is := is.New(t)
	r := New(nil)
	r.InsertMany([]string{"team1", "team2"})

	var firsts atomic.Int32
	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := "team1"
			if i%2 == 0 {
				id = "team2"
			}
			if r.CheckIn(id) {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()
	is.Equal(firsts.Load(), int32(2)) // one transition per team
}
