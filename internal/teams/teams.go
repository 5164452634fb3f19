// Package teams tracks which competitor teams are currently live.
// The state is kept in memory only and is reseeded from the users table on boot.
package teams

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

type Info struct {
	// LastSeen is when the team last logged in
	LastSeen *time.Time `json:"lastSeen"`
	// CheckedIn is set by the first login of the team
	CheckedIn    bool `json:"checkedIn"`
	Disconnected bool `json:"disconnected"`
}

type Entry struct {
	ID   string `json:"id"`
	Info Info   `json:"teamInfo"`
}

type entry struct {
	mu   sync.Mutex
	info Info
}

// Registry maps team ids to their live state.
// Every id has its own lock, so operations on different teams never block each other.
type Registry struct {
	teams sync.Map // string -> *entry
	now   func() time.Time
}

func New(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{now: now}
}

// Insert adds a team in its default state. Existing teams are left untouched.
func (r *Registry) Insert(id string) {
	r.teams.LoadOrStore(id, &entry{})
}

func (r *Registry) InsertMany(ids []string) {
	for _, id := range ids {
		r.Insert(id)
	}
}

func (r *Registry) Remove(id string) {
	r.teams.Delete(id)
}

func (r *Registry) update(id string, f func(*Info)) bool {
	val, ok := r.teams.Load(id)
	if !ok {
		return false
	}
	e := val.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	f(&e.info)
	return true
}

// CheckIn marks the team as live. It reports true only for the call that
// moved the team from not checked in to checked in. Unknown ids are ignored.
func (r *Registry) CheckIn(id string) bool {
	var transitioned bool
	r.update(id, func(info *Info) {
		now := r.now()
		transitioned = !info.CheckedIn
		info.CheckedIn = true
		info.Disconnected = false
		info.LastSeen = &now
	})
	return transitioned
}

// Disconnect flags the team as gone without forgetting that it checked in.
func (r *Registry) Disconnect(id string) {
	r.update(id, func(info *Info) {
		info.Disconnected = true
	})
}

func (r *Registry) Get(id string) (Info, bool) {
	var info Info
	ok := r.update(id, func(i *Info) {
		info = *i
	})
	return info, ok
}

// List returns a snapshot of all teams, ordered by id.
func (r *Registry) List() []Entry {
	var entries []Entry
	r.teams.Range(func(key, val any) bool {
		e := val.(*entry)
		e.mu.Lock()
		entries = append(entries, Entry{ID: key.(string), Info: e.info})
		e.mu.Unlock()
		return true
	})
	slices.SortFunc(entries, func(a, b Entry) int { return cmp.Compare(a.ID, b.ID) })
	return entries
}
