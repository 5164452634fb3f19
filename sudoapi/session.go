package sudoapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/KiloProjects/arena"
	"github.com/KiloProjects/arena/internal/events"
	"github.com/KiloProjects/arena/internal/ws"
	"github.com/KiloProjects/arena/sudoapi/flags"
)

type LoginResponse struct {
	Token string     `json:"token"`
	Role  arena.Role `json:"role"`
}

func (s *BaseAPI) sessionLifetime() time.Duration {
	return time.Duration(flags.SessionLifetimeDays.Value()) * 24 * time.Hour
}

// Login checks the credentials and opens a session.
// The first login of a competitor checks the team in.
func (s *BaseAPI) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	user, err := s.users.VerifyLogin(ctx, username, password)
	if err != nil {
		if arena.ErrorCode(err) == 401 {
			s.logger.DebugContext(ctx, "Failed login attempt", slog.String("username", username))
			return nil, err
		}
		return nil, arena.WrapError(err, "Couldn't log in")
	}

	sess, err := s.sessions.CreateSession(ctx, user.ID, s.sessionLifetime())
	if err != nil {
		return nil, arena.WrapError(err, "Failed to create session")
	}

	if user.Role == arena.RoleCompetitor {
		if s.teams.CheckIn(user.ID) {
			s.dispatch(ctx, events.CheckIn{Name: user.Name(), Time: s.now()})
		}
		if team, err := s.teamWithScore(ctx, user); err != nil {
			s.logger.WarnContext(ctx, "Couldn't announce team connection", slog.String("user", user.ID), slog.Any("err", err))
		} else {
			s.conns.Broadcast(ws.NewBroadcast(ws.TeamConnected{Team: *team}))
		}
	}

	s.logger.DebugContext(ctx, "Log in", slog.String("username", user.Username))
	return &LoginResponse{Token: sess.ID, Role: user.Role}, nil
}

// Logout closes the session and marks the team as disconnected.
func (s *BaseAPI) Logout(ctx context.Context, sid string, user *arena.User) error {
	if err := s.RemoveSession(ctx, sid); err != nil {
		return err
	}
	if user.Role != arena.RoleCompetitor {
		return nil
	}
	s.teams.Disconnect(user.ID)
	team, err := s.teamWithScore(ctx, user)
	if err != nil {
		s.logger.WarnContext(ctx, "Couldn't announce team disconnection", slog.String("user", user.ID), slog.Any("err", err))
		return nil
	}
	s.conns.Broadcast(ws.NewBroadcast(ws.TeamDisconnected{Team: *team}))
	return nil
}

// Uncached function
func (s *BaseAPI) sessionUser(ctx context.Context, sid string) (*arena.User, time.Time, error) {
	user, expiresAt, err := s.sessions.SessionUser(ctx, sid)
	if err != nil {
		if arena.ErrorCode(err) == 401 {
			return nil, time.Time{}, err
		}
		return nil, time.Time{}, arena.WrapError(err, "Failed to get session user")
	}
	return user, expiresAt, nil
}

// SessionUser returns the user of a session, or nil if there is no such session.
// Lookups are cached for a few seconds.
func (s *BaseAPI) SessionUser(ctx context.Context, sid string) (*arena.User, error) {
	if sid == "" {
		return nil, nil
	}
	user, err := s.sessionUserCache.Get(ctx, sid)
	if err != nil {
		if arena.ErrorCode(err) == 401 {
			return nil, err
		}
		s.logger.WarnContext(ctx, "session user cache error", slog.Any("err", err))
		user, _, err := s.sessionUser(ctx, sid)
		return user, err
	}
	return user, nil
}

// AuthenticateSocket resolves the connection kind of a new socket.
// Sockets without a valid session are treated as leaderboard viewers.
func (s *BaseAPI) AuthenticateSocket(ctx context.Context, token, remoteAddr string) (ws.Kind, *arena.User) {
	user, err := s.SessionUser(ctx, token)
	if err != nil && arena.ErrorCode(err) != 401 {
		s.logger.WarnContext(ctx, "Couldn't authenticate socket", slog.Any("err", err))
	}
	if user == nil || err != nil {
		return ws.LeaderboardKind(arena.RandomString(arena.IDLength), remoteAddr), nil
	}
	return ws.UserKind(user.ID), user
}

func (s *BaseAPI) RemoveSession(ctx context.Context, sid string) error {
	if err := s.sessions.RemoveSession(ctx, sid); err != nil {
		s.logger.WarnContext(ctx, "Failed to remove session", slog.Any("err", err))
		return arena.WrapError(err, "Failed to remove session")
	}
	s.sessionUserCache.Delete(sid)
	return nil
}

func (s *BaseAPI) RemoveUserSessions(ctx context.Context, userID string) error {
	removedSessions, err := s.sessions.RemoveUserSessions(ctx, userID)
	if err != nil {
		return arena.WrapError(err, "Failed to remove sessions")
	}
	for _, sess := range removedSessions {
		s.sessionUserCache.Delete(sess)
	}
	return nil
}
