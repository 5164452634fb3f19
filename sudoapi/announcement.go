package sudoapi

import (
	"context"
	"strings"

	"github.com/KiloProjects/arena"
	"github.com/KiloProjects/arena/internal/events"
	"github.com/KiloProjects/arena/internal/ws"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type AnnouncementCreation struct {
	Message string `json:"message"`
}

func (a AnnouncementCreation) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Message, validation.Required, validation.Length(1, 2000)),
	)
}

// Announce stores a message from a host and pushes it to everyone.
func (s *BaseAPI) Announce(ctx context.Context, host *arena.User, args AnnouncementCreation) (*arena.Announcement, error) {
	args.Message = strings.TrimSpace(args.Message)
	if err := args.Validate(); err != nil {
		return nil, arena.Statusf(400, "Invalid announcement: %s", err)
	}
	ann, err := s.anns.CreateAnnouncement(ctx, host.Name(), args.Message)
	if err != nil {
		return nil, arena.WrapError(err, "Couldn't create announcement")
	}
	s.conns.Broadcast(ws.NewBroadcast(ws.Announce{Message: ann.Message}))
	s.dispatch(ctx, events.Announcement{Announcer: ann.Sender, Announcement: ann.Message, Time: ann.Time})
	return ann, nil
}

func (s *BaseAPI) Announcements(ctx context.Context) ([]*arena.Announcement, error) {
	anns, err := s.anns.Announcements(ctx)
	if err != nil {
		return nil, arena.WrapError(err, "Couldn't get announcements")
	}
	if anns == nil {
		anns = []*arena.Announcement{}
	}
	return anns, nil
}

func (s *BaseAPI) DeleteAnnouncement(ctx context.Context, id string) error {
	if err := s.anns.DeleteAnnouncement(ctx, id); err != nil {
		if arena.ErrorCode(err) == 404 {
			return arena.Statusf(404, "Announcement not found")
		}
		return arena.WrapError(err, "Couldn't delete announcement")
	}
	return nil
}
