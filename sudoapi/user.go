package sudoapi

import (
	"context"
	"strings"

	"github.com/KiloProjects/arena"
	"github.com/KiloProjects/arena/internal/events"
	"github.com/KiloProjects/arena/internal/repository"
	"github.com/KiloProjects/arena/internal/ws"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"golang.org/x/sync/errgroup"
)

var (
	unameValidation = []validation.Rule{validation.Required, validation.Length(3, 32), is.PrintableASCII}
	pwdValidation   = []validation.Rule{validation.Required, validation.Length(6, 64)}
	nameValidation  = []validation.Rule{validation.Length(0, 64)}
)

// scoreFanout bounds the concurrent score lookups of team listings
const scoreFanout = 8

func (s *BaseAPI) User(ctx context.Context, id string) (*arena.User, error) {
	user, err := s.users.UserByID(ctx, id)
	if err != nil {
		return nil, arena.WrapError(err, "Couldn't get user")
	}
	if user == nil {
		return nil, arena.Statusf(404, "Team not found")
	}
	return user, nil
}

func (s *BaseAPI) teamWithScore(ctx context.Context, user *arena.User) (*ws.TeamWithScore, error) {
	score, err := s.subs.GetUserScore(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	info, _ := s.teams.Get(user.ID)
	return &ws.TeamWithScore{
		ID:          user.ID,
		Name:        user.Username,
		DisplayName: user.DisplayName,
		Score:       score,
		TeamInfo:    info,
	}, nil
}

// Teams lists every competitor with its score.
func (s *BaseAPI) Teams(ctx context.Context) ([]*ws.TeamWithScore, error) {
	users, err := s.users.UsersWithRole(ctx, arena.RoleCompetitor)
	if err != nil {
		return nil, arena.WrapError(err, "Couldn't get teams")
	}
	teams := make([]*ws.TeamWithScore, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scoreFanout)
	for i, user := range users {
		g.Go(func() error {
			team, err := s.teamWithScore(gctx, user)
			if err != nil {
				return err
			}
			teams[i] = team
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, arena.WrapError(err, "Couldn't get team scores")
	}
	return teams, nil
}

type TeamCreation struct {
	Username    string  `json:"username"`
	DisplayName *string `json:"displayName"`
	Password    string  `json:"password"`
}

func (t TeamCreation) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Username, unameValidation...),
		validation.Field(&t.DisplayName, nameValidation...),
		validation.Field(&t.Password, pwdValidation...),
	)
}

// CreateTeam adds a competitor and makes it known to the team registry.
func (s *BaseAPI) CreateTeam(ctx context.Context, args TeamCreation) (*arena.User, error) {
	args.Username = strings.TrimSpace(args.Username)
	if err := args.Validate(); err != nil {
		return nil, arena.Statusf(400, "Invalid team: %s", err)
	}
	hash, err := repository.HashPassword(args.Password)
	if err != nil {
		return nil, arena.WrapError(err, "Couldn't hash password")
	}
	user := &arena.User{
		Username:     args.Username,
		DisplayName:  args.DisplayName,
		PasswordHash: hash,
		Role:         arena.RoleCompetitor,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, arena.WrapError(err, "Couldn't create team")
	}
	s.teams.Insert(user.ID)
	return user, nil
}

type TeamUpdate struct {
	Username *string `json:"username"`
	// DisplayName is set when present, RemoveDisplayName clears it
	DisplayName       *string `json:"displayName"`
	RemoveDisplayName bool    `json:"removeDisplayName"`
	Password          *string `json:"password"`
}

func (t TeamUpdate) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Username, validation.NilOrNotEmpty, validation.Length(3, 32), is.PrintableASCII),
		validation.Field(&t.DisplayName, nameValidation...),
		validation.Field(&t.Password, validation.NilOrNotEmpty, validation.Length(6, 64)),
	)
}

func (s *BaseAPI) UpdateTeam(ctx context.Context, id string, args TeamUpdate) error {
	if err := args.Validate(); err != nil {
		return arena.Statusf(400, "Invalid update: %s", err)
	}
	upd := arena.UserUpdate{
		Username:         args.Username,
		DisplayName:      args.DisplayName,
		ClearDisplayName: args.RemoveDisplayName,
	}
	if args.Password != nil {
		hash, err := repository.HashPassword(*args.Password)
		if err != nil {
			return arena.WrapError(err, "Couldn't hash password")
		}
		upd.PasswordHash = &hash
	}
	if err := s.users.UpdateUser(ctx, id, upd); err != nil {
		return arena.WrapError(err, "Couldn't update team")
	}
	// cached session users expire on their own
	return nil
}

// KickTeam logs a team out of every session and closes its socket.
func (s *BaseAPI) KickTeam(ctx context.Context, host *arena.User, id string) error {
	user, err := s.User(ctx, id)
	if err != nil {
		return err
	}
	if err := s.RemoveUserSessions(ctx, user.ID); err != nil {
		return err
	}
	s.teams.Disconnect(user.ID)
	s.conns.RemoveConnection(ws.UserKind(user.ID))
	s.dispatch(ctx, events.TeamKick{TeamKicked: user.Name(), KickedBy: host.Name(), Time: s.now()})
	return nil
}

// DeleteTeam removes a team along with its sessions and history.
func (s *BaseAPI) DeleteTeam(ctx context.Context, host *arena.User, id string) error {
	user, err := s.User(ctx, id)
	if err != nil {
		return err
	}
	if user.Role != arena.RoleCompetitor {
		return arena.Statusf(400, "Only teams can be deleted")
	}
	if err := s.RemoveUserSessions(ctx, user.ID); err != nil {
		return err
	}
	if err := s.users.DeleteUser(ctx, user.ID); err != nil {
		return arena.WrapError(err, "Couldn't delete team")
	}
	s.teams.Remove(user.ID)
	s.conns.RemoveConnection(ws.UserKind(user.ID))
	s.dispatch(ctx, events.TeamBan{TeamBanned: user.Name(), BannedBy: host.Name(), Time: s.now()})
	return nil
}
