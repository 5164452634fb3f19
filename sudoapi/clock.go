package sudoapi

import (
	"context"

	"github.com/KiloProjects/arena"
	"github.com/KiloProjects/arena/internal/events"
	"github.com/KiloProjects/arena/internal/ws"
)

type ClockStatus struct {
	IsPaused          bool   `json:"isPaused"`
	TimeLeftInSeconds uint64 `json:"timeLeftInSeconds"`
}

func (s *BaseAPI) ClockStatus() ClockStatus {
	cur := s.clock.Current()
	return ClockStatus{
		IsPaused:          cur.Paused,
		TimeLeftInSeconds: uint64(max(s.timeLimit-cur.Elapsed, 0).Seconds()),
	}
}

// SetPaused pauses or resumes the competition.
// Repeated requests for the current state are no-ops.
func (s *BaseAPI) SetPaused(ctx context.Context, host *arena.User, paused bool) ClockStatus {
	if paused {
		if s.clock.Pause() {
			s.conns.Broadcast(ws.NewBroadcast(ws.GamePaused{}))
			s.dispatch(ctx, events.Pause{PausedBy: host.Name(), Time: s.now()})
		}
		return s.ClockStatus()
	}
	if s.clock.Unpause() {
		status := s.ClockStatus()
		s.conns.Broadcast(ws.NewBroadcast(ws.GameUnpaused{TimeLeftInSeconds: status.TimeLeftInSeconds}))
		s.dispatch(ctx, events.Unpause{UnpausedBy: host.Name(), Time: s.now()})
		return status
	}
	return s.ClockStatus()
}
